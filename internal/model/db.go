package model

import (
	"time"

	"gorm.io/datatypes"
)

// Contest statuses. Transitions are one-directional; closed and cancelled are terminal.
const (
	ContestStatusDraft     = "draft"
	ContestStatusActive    = "active"
	ContestStatusClosed    = "closed"
	ContestStatusCancelled = "cancelled"
)

// Contest metrics used for leaderboard ranking.
const (
	MetricTotalSales = "total_sales"
	MetricOrderCount = "order_count"
)

type Contest struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:varchar(256);not null"`
	Metric    string    `gorm:"column:metric;type:varchar(16);not null;default:total_sales"`
	StartAt   time.Time `gorm:"column:start_at;not null"`
	EndAt     time.Time `gorm:"column:end_at;not null"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;default:draft"`
	CreatorID uint64    `gorm:"column:creator_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Store is a connected shop. ShopDomain is the platform-native key webhook
// payloads resolve against.
type Store struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ShopDomain  string    `gorm:"column:shop_domain;type:varchar(128);uniqueIndex;not null"`
	AccessToken string    `gorm:"column:access_token;type:varchar(128);not null"`
	UserID      uint64    `gorm:"column:user_id;not null"`
	IsActive    bool      `gorm:"column:is_active;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ContestParticipant links a user's store to a contest. TotalSales/OrderCount
// are cached running totals; FinalRank is written at settlement.
type ContestParticipant struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ContestID  uint64    `gorm:"column:contest_id;not null;uniqueIndex:uk_contest_user_store"`
	UserID     uint64    `gorm:"column:user_id;not null;uniqueIndex:uk_contest_user_store"`
	StoreID    uint64    `gorm:"column:store_id;not null;uniqueIndex:uk_contest_user_store"`
	JoinedAt   time.Time `gorm:"column:joined_at;not null"`
	TotalSales int64     `gorm:"column:total_sales;not null;default:0"`
	OrderCount int64     `gorm:"column:order_count;not null;default:0"`
	FinalRank  *int      `gorm:"column:final_rank"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// WebhookSubscription records an upstream webhook registration. Torn-down
// subscriptions are marked inactive, never deleted, so setup stays idempotent
// and the registration history survives for audit.
type WebhookSubscription struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ContestID uint64    `gorm:"column:contest_id;not null;index:idx_sub_contest_store_topic"`
	StoreID   uint64    `gorm:"column:store_id;not null;index:idx_sub_contest_store_topic"`
	Topic     string    `gorm:"column:topic;type:varchar(32);not null;index:idx_sub_contest_store_topic"`
	WebhookID string    `gorm:"column:webhook_id;type:varchar(64);not null"`
	IsActive  bool      `gorm:"column:is_active;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ContestStoreBalance is the per (contest, store) running total in minor
// currency units. Derived state: OrderEvent is the source of truth.
type ContestStoreBalance struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ContestID  uint64    `gorm:"column:contest_id;not null;uniqueIndex:uk_contest_store"`
	StoreID    uint64    `gorm:"column:store_id;not null;uniqueIndex:uk_contest_store"`
	TotalSales int64     `gorm:"column:total_sales;not null;default:0"`
	OrderCount int64     `gorm:"column:order_count;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderEvent is the append-only ledger of received order/refund notifications.
// Rows are never mutated or deleted. The unique index on (store, order, type)
// makes redelivered messages no-ops at append time.
type OrderEvent struct {
	ID          uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	StoreID     uint64         `gorm:"column:store_id;not null;uniqueIndex:uk_store_order_type;index"`
	OrderID     string         `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:uk_store_order_type"`
	EventType   string         `gorm:"column:event_type;type:varchar(32);not null;uniqueIndex:uk_store_order_type"`
	Amount      int64          `gorm:"column:amount;not null"` // signed, minor units
	Currency    string         `gorm:"column:currency;type:varchar(8)"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;not null;index"` // business timestamp from the payload
	ProcessedAt time.Time      `gorm:"column:processed_at;not null"`
	RawPayload  datatypes.JSON `gorm:"column:raw_payload;type:jsonb"`
}

func (Contest) TableName() string             { return "contests" }
func (Store) TableName() string               { return "stores" }
func (ContestParticipant) TableName() string  { return "contest_participants" }
func (WebhookSubscription) TableName() string { return "webhook_subscriptions" }
func (ContestStoreBalance) TableName() string { return "contest_store_balances" }
func (OrderEvent) TableName() string          { return "order_events" }
