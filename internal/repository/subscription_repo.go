package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

// SubscriptionRepository is the durable registry of upstream webhook
// registrations. Rows are marked inactive on teardown, never deleted.
type SubscriptionRepository interface {
	GetActive(ctx context.Context, contestID, storeID uint64, topic string) (*model.WebhookSubscription, error)
	Create(ctx context.Context, sub *model.WebhookSubscription) error
	ListActiveByContest(ctx context.Context, contestID uint64) ([]*model.WebhookSubscription, error)
	MarkInactive(ctx context.Context, id uint64) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) GetActive(ctx context.Context, contestID, storeID uint64, topic string) (*model.WebhookSubscription, error) {
	var sub model.WebhookSubscription
	if err := r.db.WithContext(ctx).
		Where("contest_id = ? AND store_id = ? AND topic = ? AND is_active = ?",
			contestID, storeID, topic, true).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *model.WebhookSubscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) ListActiveByContest(ctx context.Context, contestID uint64) ([]*model.WebhookSubscription, error) {
	var list []*model.WebhookSubscription
	if err := r.db.WithContext(ctx).
		Where("contest_id = ? AND is_active = ?", contestID, true).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *subscriptionRepository) MarkInactive(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.WebhookSubscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error
}
