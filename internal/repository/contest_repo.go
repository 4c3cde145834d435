package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

var ErrNotFound = errors.New("not found")

// ContestRepository covers contests, stores and participant memberships.
type ContestRepository interface {
	CreateContest(ctx context.Context, contest *model.Contest) error
	GetContest(ctx context.Context, contestID uint64) (*model.Contest, error)
	UpdateContestStatus(ctx context.Context, contestID uint64, status string) error
	ListContestsByStatusDue(ctx context.Context, status string, field string, now time.Time) ([]*model.Contest, error)

	CreateStore(ctx context.Context, store *model.Store) error
	GetStore(ctx context.Context, storeID uint64) (*model.Store, error)
	GetActiveStoreByDomain(ctx context.Context, shopDomain string) (*model.Store, error)
	DeactivateStore(ctx context.Context, storeID uint64) error

	CreateParticipant(ctx context.Context, p *model.ContestParticipant) error
	GetParticipant(ctx context.Context, contestID, userID uint64) (*model.ContestParticipant, error)
	ListParticipants(ctx context.Context, contestID uint64) ([]*model.ContestParticipant, error)
	DeleteParticipant(ctx context.Context, contestID, userID uint64) error
	ListActiveMemberships(ctx context.Context, storeID uint64) ([]*Membership, error)
	SetParticipantFinalRank(ctx context.Context, participantID uint64, rank int) error
}

// Membership pairs a participant row with its (active) contest.
type Membership struct {
	Contest     *model.Contest
	Participant *model.ContestParticipant
}

type contestRepository struct {
	db *gorm.DB
}

func NewContestRepository(db *gorm.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) CreateContest(ctx context.Context, contest *model.Contest) error {
	return r.db.WithContext(ctx).Create(contest).Error
}

func (r *contestRepository) GetContest(ctx context.Context, contestID uint64) (*model.Contest, error) {
	var c model.Contest
	if err := r.db.WithContext(ctx).First(&c, contestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *contestRepository) UpdateContestStatus(ctx context.Context, contestID uint64, status string) error {
	return r.db.WithContext(ctx).Model(&model.Contest{}).
		Where("id = ?", contestID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
}

// ListContestsByStatusDue lists contests in the given status whose start_at or
// end_at (field) has passed. Backing query for the lifecycle sweep.
func (r *contestRepository) ListContestsByStatusDue(ctx context.Context, status string, field string, now time.Time) ([]*model.Contest, error) {
	var list []*model.Contest
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Where(field+" <= ?", now).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *contestRepository) CreateStore(ctx context.Context, store *model.Store) error {
	return r.db.WithContext(ctx).Create(store).Error
}

func (r *contestRepository) GetStore(ctx context.Context, storeID uint64) (*model.Store, error) {
	var s model.Store
	if err := r.db.WithContext(ctx).First(&s, storeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *contestRepository) GetActiveStoreByDomain(ctx context.Context, shopDomain string) (*model.Store, error) {
	var s model.Store
	if err := r.db.WithContext(ctx).
		Where("shop_domain = ? AND is_active = ?", shopDomain, true).
		First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// DeactivateStore soft-removes a store and cascades its memberships out of
// contests that have not ended yet. Ledger rows and ended-contest results stay.
func (r *contestRepository) DeactivateStore(ctx context.Context, storeID uint64) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Model(&model.Store{}).
		Where("id = ?", storeID).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.
		Where("store_id = ? AND contest_id IN (?)", storeID,
			tx.Model(&model.Contest{}).Select("id").
				Where("status IN ?", []string{model.ContestStatusDraft, model.ContestStatusActive})).
		Delete(&model.ContestParticipant{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func (r *contestRepository) CreateParticipant(ctx context.Context, p *model.ContestParticipant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *contestRepository) GetParticipant(ctx context.Context, contestID, userID uint64) (*model.ContestParticipant, error) {
	var p model.ContestParticipant
	if err := r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *contestRepository) ListParticipants(ctx context.Context, contestID uint64) ([]*model.ContestParticipant, error) {
	var list []*model.ContestParticipant
	if err := r.db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("joined_at ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *contestRepository) DeleteParticipant(ctx context.Context, contestID, userID uint64) error {
	return r.db.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		Delete(&model.ContestParticipant{}).Error
}

// ListActiveMemberships returns the store's participant rows in contests that
// are currently active, paired with the contest for window filtering.
func (r *contestRepository) ListActiveMemberships(ctx context.Context, storeID uint64) ([]*Membership, error) {
	var participants []*model.ContestParticipant
	if err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Find(&participants).Error; err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.ContestID)
	}
	var contests []*model.Contest
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, model.ContestStatusActive).
		Find(&contests).Error; err != nil {
		return nil, err
	}
	contestByID := make(map[uint64]*model.Contest, len(contests))
	for _, c := range contests {
		contestByID[c.ID] = c
	}

	memberships := make([]*Membership, 0, len(contests))
	for _, p := range participants {
		if c, ok := contestByID[p.ContestID]; ok {
			memberships = append(memberships, &Membership{Contest: c, Participant: p})
		}
	}
	return memberships, nil
}

func (r *contestRepository) SetParticipantFinalRank(ctx context.Context, participantID uint64, rank int) error {
	return r.db.WithContext(ctx).Model(&model.ContestParticipant{}).
		Where("id = ?", participantID).
		Updates(map[string]interface{}{"final_rank": rank, "updated_at": time.Now()}).Error
}
