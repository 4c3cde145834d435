package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/queue"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

// Message attributes set by the upstream platform on queue deliveries.
const (
	attrTopic      = "X-Shopify-Topic"
	attrShopDomain = "X-Shopify-Shop-Domain"
)

// Outcome classifies one processed delivery.
type Outcome int

const (
	// OutcomeApplied: ledger row appended, qualifying balances incremented, acked.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate: ledger already has this (store, order, type), acked.
	OutcomeDuplicate
	// OutcomeDropped: unresolvable or malformed, acked so it is never retried.
	OutcomeDropped
	// OutcomeRetry: transient persistence failure, nacked for redelivery.
	OutcomeRetry
)

// ConsumerService applies one decoded order/refund notification per
// invocation. The queue runtime calls Process concurrently with no ordering
// guarantee; all balance mutations are atomic SQL increments.
type ConsumerService struct {
	db          *gorm.DB
	contestRepo repository.ContestRepository
	logger      *logrus.Logger
}

func NewConsumerService(db *gorm.DB, logger *logrus.Logger) *ConsumerService {
	return &ConsumerService{
		db:          db,
		contestRepo: repository.NewContestRepository(db),
		logger:      logger,
	}
}

// Process decodes, resolves and applies one delivery, then acks or nacks it.
// Unknown stores and malformed payloads are acked and dropped: redelivering
// them can never succeed and only poisons the queue.
func (s *ConsumerService) Process(ctx context.Context, msg queue.Message) Outcome {
	kind, ok := model.KindForTopic(msg.Attribute(attrTopic))
	if !ok {
		s.logger.WithField("topic", msg.Attribute(attrTopic)).Warn("unknown event topic, dropping")
		msg.Ack()
		return OutcomeDropped
	}

	n, err := model.DecodeNotification(kind, msg.Data(), time.Now().UTC())
	if err != nil {
		s.logger.WithError(err).WithField("topic", kind.Topic).Warn("malformed payload, dropping")
		msg.Ack()
		return OutcomeDropped
	}

	shopDomain := n.ShopDomain
	if shopDomain == "" {
		shopDomain = msg.Attribute(attrShopDomain)
	}
	if shopDomain == "" {
		s.logger.WithField("order_id", n.OrderID).Warn("delivery carries no shop domain, dropping")
		msg.Ack()
		return OutcomeDropped
	}

	store, err := s.contestRepo.GetActiveStoreByDomain(ctx, shopDomain)
	if err == repository.ErrNotFound {
		s.logger.WithField("shop", shopDomain).Warn("unknown store, dropping")
		msg.Ack()
		return OutcomeDropped
	}
	if err != nil {
		s.logger.WithError(err).WithField("shop", shopDomain).Error("resolve store")
		msg.Nack()
		return OutcomeRetry
	}

	outcome, err := s.apply(ctx, store, n)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"shop":     shopDomain,
			"order_id": n.OrderID,
			"type":     kind.Type,
		}).Error("apply notification, will retry")
		msg.Nack()
		return OutcomeRetry
	}
	msg.Ack()
	return outcome
}

// apply appends the ledger row and fans the signed amount out to every active
// contest the store qualifies for, in one transaction. A redelivered message
// hits the ledger uniqueness and applies nothing.
func (s *ConsumerService) apply(ctx context.Context, store *model.Store, n *model.Notification) (Outcome, error) {
	outcome := OutcomeApplied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledgerRepo := repository.NewLedgerRepository(tx)
		balanceRepo := repository.NewBalanceRepository(tx)
		contestRepo := repository.NewContestRepository(tx)

		inserted, err := ledgerRepo.AppendEvent(ctx, &model.OrderEvent{
			StoreID:     store.ID,
			OrderID:     n.OrderID,
			EventType:   n.Kind.Type,
			Amount:      n.Amount,
			Currency:    n.Currency,
			OccurredAt:  n.OccurredAt,
			ProcessedAt: time.Now().UTC(),
			RawPayload:  []byte(n.Raw),
		})
		if err != nil {
			return err
		}
		if !inserted {
			outcome = OutcomeDuplicate
			return nil
		}

		memberships, err := contestRepo.ListActiveMemberships(ctx, store.ID)
		if err != nil {
			return err
		}
		for _, m := range memberships {
			if !qualifies(m, n.OccurredAt) {
				continue
			}
			// participants joining after provisioning ran have no balance row yet
			if err := balanceRepo.EnsureBalance(ctx, m.Contest.ID, store.ID); err != nil {
				return err
			}
			if err := balanceRepo.IncrementBalance(ctx, m.Contest.ID, store.ID, n.Amount, n.Kind.CountDelta); err != nil {
				return err
			}
			if err := balanceRepo.IncrementParticipantTotals(ctx, m.Contest.ID, store.ID, n.Amount, n.Kind.CountDelta); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return OutcomeRetry, err
	}
	return outcome, nil
}

// qualifies applies the window and late-join filters on the business
// timestamp: an event counts only inside [startAt, endAt] and never before
// the participant joined.
func qualifies(m *repository.Membership, occurredAt time.Time) bool {
	if occurredAt.Before(m.Contest.StartAt) || occurredAt.After(m.Contest.EndAt) {
		return false
	}
	if occurredAt.Before(m.Participant.JoinedAt) {
		return false
	}
	return true
}

// Handler adapts Process to the queue's handler signature.
func (s *ConsumerService) Handler() queue.Handler {
	return func(ctx context.Context, msg queue.Message) {
		s.Process(ctx, msg)
	}
}
