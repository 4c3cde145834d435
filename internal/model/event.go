package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Webhook topics tracked per participating store.
const (
	TopicOrdersCreate  = "orders/create"
	TopicOrdersPaid    = "orders/paid"
	TopicRefundsCreate = "refunds/create"
)

// EventKind is the closed set of notification variants. Each kind carries its
// signed-amount and order-count policy, resolved once at decode time.
type EventKind struct {
	Type       string // ledger event_type
	Topic      string // upstream webhook topic
	QueueTopic string // queue topic name the webhook address points at
	Sign       int64  // +1 orders, -1 refunds
	CountDelta int64  // order count contribution
}

var (
	KindOrderCreated  = EventKind{Type: "orders_create", Topic: TopicOrdersCreate, QueueTopic: "orders-create", Sign: 1, CountDelta: 1}
	KindOrderPaid     = EventKind{Type: "orders_paid", Topic: TopicOrdersPaid, QueueTopic: "orders-paid", Sign: 1, CountDelta: 1}
	KindRefundCreated = EventKind{Type: "refunds_create", Topic: TopicRefundsCreate, QueueTopic: "refunds-create", Sign: -1, CountDelta: 0}
)

// Kinds lists every tracked variant, in webhook provisioning order.
func Kinds() []EventKind {
	return []EventKind{KindOrderCreated, KindOrderPaid, KindRefundCreated}
}

// KindForType resolves a ledger event_type ("orders_create") to its variant.
func KindForType(eventType string) (EventKind, bool) {
	for _, k := range Kinds() {
		if k.Type == eventType {
			return k, true
		}
	}
	return EventKind{}, false
}

// KindForTopic resolves an upstream topic ("orders/create") to its variant.
func KindForTopic(topic string) (EventKind, bool) {
	for _, k := range Kinds() {
		if k.Topic == topic {
			return k, true
		}
	}
	return EventKind{}, false
}

// Notification is one decoded order/refund message.
type Notification struct {
	Kind       EventKind
	OrderID    string // upstream resource id (order id, or refund id for refunds)
	Amount     int64  // signed, minor units
	Currency   string
	OccurredAt time.Time // business timestamp from the payload
	ShopDomain string    // resolution key, may be empty if only in attributes
	Raw        json.RawMessage
}

// orderPayload covers the fields we read from orders/create and orders/paid.
type orderPayload struct {
	ID         json.Number `json:"id"`
	TotalPrice string      `json:"total_price"`
	Currency   string      `json:"currency"`
	CreatedAt  string      `json:"created_at"`
	ShopDomain string      `json:"myshopify_domain"`
}

// refundPayload covers the fields we read from refunds/create.
type refundPayload struct {
	ID           json.Number `json:"id"`
	OrderID      json.Number `json:"order_id"`
	CreatedAt    string      `json:"created_at"`
	ShopDomain   string      `json:"myshopify_domain"`
	Transactions []struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	} `json:"transactions"`
	RefundLineItems []struct {
		Subtotal string `json:"subtotal"`
	} `json:"refund_line_items"`
}

// DecodeNotification parses a raw upstream payload into a Notification for the
// given kind. The returned amount is already signed per the kind's policy.
func DecodeNotification(kind EventKind, raw []byte, receivedAt time.Time) (*Notification, error) {
	n := &Notification{Kind: kind, Raw: raw, OccurredAt: receivedAt}

	switch kind.Type {
	case KindRefundCreated.Type:
		var p refundPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode refund payload: %w", err)
		}
		if p.ID.String() == "" {
			return nil, fmt.Errorf("refund payload missing id")
		}
		n.OrderID = p.ID.String()
		n.ShopDomain = p.ShopDomain
		if t, err := parseUpstreamTime(p.CreatedAt); err == nil {
			n.OccurredAt = t
		}
		amount, currency, err := refundAmount(&p)
		if err != nil {
			return nil, err
		}
		n.Amount = kind.Sign * amount
		n.Currency = currency
	default:
		var p orderPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode order payload: %w", err)
		}
		if p.ID.String() == "" {
			return nil, fmt.Errorf("order payload missing id")
		}
		n.OrderID = p.ID.String()
		n.ShopDomain = p.ShopDomain
		n.Currency = p.Currency
		if t, err := parseUpstreamTime(p.CreatedAt); err == nil {
			n.OccurredAt = t
		}
		amount, err := toMinorUnits(p.TotalPrice)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", p.ID.String(), err)
		}
		n.Amount = kind.Sign * amount
	}

	return n, nil
}

// refundAmount sums the refund's transactions; falls back to line item
// subtotals when the refund carries no transactions.
func refundAmount(p *refundPayload) (int64, string, error) {
	var total int64
	currency := ""
	for _, tx := range p.Transactions {
		v, err := toMinorUnits(tx.Amount)
		if err != nil {
			return 0, "", fmt.Errorf("refund %s transaction: %w", p.ID.String(), err)
		}
		total += v
		if currency == "" {
			currency = tx.Currency
		}
	}
	if len(p.Transactions) > 0 {
		return total, currency, nil
	}
	for _, li := range p.RefundLineItems {
		v, err := toMinorUnits(li.Subtotal)
		if err != nil {
			return 0, "", fmt.Errorf("refund %s line item: %w", p.ID.String(), err)
		}
		total += v
	}
	return total, currency, nil
}

// toMinorUnits converts an upstream money string ("50.00") to cents.
func toMinorUnits(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart(), nil
}

// parseUpstreamTime accepts the RFC3339 timestamps upstream payloads carry.
func parseUpstreamTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// some payloads use a unix epoch string
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
