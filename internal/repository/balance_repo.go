package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

// BalanceRepository maintains the derived (contest, store) and participant
// totals. Increments are single UPDATE statements with SQL expressions so
// concurrent consumer invocations never lose a read-modify-write race.
type BalanceRepository interface {
	EnsureBalance(ctx context.Context, contestID, storeID uint64) error
	GetBalance(ctx context.Context, contestID, storeID uint64) (*model.ContestStoreBalance, error)
	IncrementBalance(ctx context.Context, contestID, storeID uint64, amount, countDelta int64) error
	IncrementParticipantTotals(ctx context.Context, contestID, storeID uint64, amount, countDelta int64) error
	OverwriteBalance(ctx context.Context, contestID, storeID uint64, totalSales, orderCount int64) error
	OverwriteParticipantTotals(ctx context.Context, contestID, userID uint64, totalSales, orderCount int64) error
	ListContestBalances(ctx context.Context, contestID uint64) ([]*model.ContestStoreBalance, error)
}

type balanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

// EnsureBalance upserts a zero row for (contest, store). Existing totals are
// never overwritten, so provisioning retries are safe.
func (r *balanceRepository) EnsureBalance(ctx context.Context, contestID, storeID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}, {Name: "store_id"}},
			DoNothing: true,
		}).
		Create(&model.ContestStoreBalance{ContestID: contestID, StoreID: storeID}).Error
}

func (r *balanceRepository) GetBalance(ctx context.Context, contestID, storeID uint64) (*model.ContestStoreBalance, error) {
	var b model.ContestStoreBalance
	if err := r.db.WithContext(ctx).
		Where("contest_id = ? AND store_id = ?", contestID, storeID).
		First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *balanceRepository) IncrementBalance(ctx context.Context, contestID, storeID uint64, amount, countDelta int64) error {
	return r.db.WithContext(ctx).Model(&model.ContestStoreBalance{}).
		Where("contest_id = ? AND store_id = ?", contestID, storeID).
		Updates(map[string]interface{}{
			"total_sales": gorm.Expr("total_sales + ?", amount),
			"order_count": gorm.Expr("order_count + ?", countDelta),
			"updated_at":  time.Now(),
		}).Error
}

func (r *balanceRepository) IncrementParticipantTotals(ctx context.Context, contestID, storeID uint64, amount, countDelta int64) error {
	return r.db.WithContext(ctx).Model(&model.ContestParticipant{}).
		Where("contest_id = ? AND store_id = ?", contestID, storeID).
		Updates(map[string]interface{}{
			"total_sales": gorm.Expr("total_sales + ?", amount),
			"order_count": gorm.Expr("order_count + ?", countDelta),
			"updated_at":  time.Now(),
		}).Error
}

// OverwriteBalance replaces the cached totals outright. Recalculation only.
func (r *balanceRepository) OverwriteBalance(ctx context.Context, contestID, storeID uint64, totalSales, orderCount int64) error {
	if err := r.EnsureBalance(ctx, contestID, storeID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.ContestStoreBalance{}).
		Where("contest_id = ? AND store_id = ?", contestID, storeID).
		Updates(map[string]interface{}{
			"total_sales": totalSales,
			"order_count": orderCount,
			"updated_at":  time.Now(),
		}).Error
}

func (r *balanceRepository) OverwriteParticipantTotals(ctx context.Context, contestID, userID uint64, totalSales, orderCount int64) error {
	return r.db.WithContext(ctx).Model(&model.ContestParticipant{}).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		Updates(map[string]interface{}{
			"total_sales": totalSales,
			"order_count": orderCount,
			"updated_at":  time.Now(),
		}).Error
}

// ListContestBalances returns the contest leaderboard. Tie-break: order count,
// then store id for a fully deterministic ranking.
func (r *balanceRepository) ListContestBalances(ctx context.Context, contestID uint64) ([]*model.ContestStoreBalance, error) {
	var list []*model.ContestStoreBalance
	if err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("total_sales DESC, order_count DESC, store_id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
