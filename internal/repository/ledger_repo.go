package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

// LedgerRepository is the append-only OrderEvent store.
type LedgerRepository interface {
	// AppendEvent inserts one ledger row. Returns false when a row with the
	// same (store, order, type) already exists, i.e. a redelivered message.
	AppendEvent(ctx context.Context, event *model.OrderEvent) (bool, error)
	ListStoreEventsInWindow(ctx context.Context, storeID uint64, from, to time.Time) ([]*model.OrderEvent, error)
	ListStoreEvents(ctx context.Context, storeID uint64, limit int) ([]*model.OrderEvent, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) AppendEvent(ctx context.Context, event *model.OrderEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}, {Name: "order_id"}, {Name: "event_type"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListStoreEventsInWindow returns the store's ledger rows with a business
// timestamp inside [from, to], oldest first. Backing query for recalculation.
func (r *ledgerRepository) ListStoreEventsInWindow(ctx context.Context, storeID uint64, from, to time.Time) ([]*model.OrderEvent, error) {
	var list []*model.OrderEvent
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND occurred_at >= ? AND occurred_at <= ?", storeID, from, to).
		Order("occurred_at ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *ledgerRepository) ListStoreEvents(ctx context.Context, storeID uint64, limit int) ([]*model.OrderEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var list []*model.OrderEvent
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
