package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

// BalanceService is the read path over the derived balances and the ledger.
type BalanceService struct {
	contestRepo repository.ContestRepository
	balanceRepo repository.BalanceRepository
	ledgerRepo  repository.LedgerRepository
	logger      *logrus.Logger
}

func NewBalanceService(
	contestRepo repository.ContestRepository,
	balanceRepo repository.BalanceRepository,
	ledgerRepo repository.LedgerRepository,
	logger *logrus.Logger,
) *BalanceService {
	return &BalanceService{
		contestRepo: contestRepo,
		balanceRepo: balanceRepo,
		ledgerRepo:  ledgerRepo,
		logger:      logger,
	}
}

// GetContestBalances returns the contest leaderboard: balances ordered by
// (total_sales desc, order_count desc, store_id asc).
func (s *BalanceService) GetContestBalances(ctx context.Context, contestID uint64) ([]*model.ContestStoreBalance, error) {
	if _, err := s.contestRepo.GetContest(ctx, contestID); err != nil {
		return nil, err
	}
	return s.balanceRepo.ListContestBalances(ctx, contestID)
}

// ListStoreEvents returns the store's recent ledger rows. When contestID is
// set, events are scoped to the contest window and the owner's join date.
func (s *BalanceService) ListStoreEvents(ctx context.Context, storeID uint64, contestID uint64, limit int) ([]*model.OrderEvent, error) {
	if contestID == 0 {
		return s.ledgerRepo.ListStoreEvents(ctx, storeID, limit)
	}

	contest, err := s.contestRepo.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	store, err := s.contestRepo.GetStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("load store %d: %w", storeID, err)
	}
	from := contest.StartAt
	p, err := s.contestRepo.GetParticipant(ctx, contestID, store.UserID)
	if err == nil && p.JoinedAt.After(from) {
		from = p.JoinedAt
	}
	events, err := s.ledgerRepo.ListStoreEventsInWindow(ctx, storeID, from, contest.EndAt)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// DisconnectStore soft-removes a store and drops its memberships from
// contests that have not ended.
func (s *BalanceService) DisconnectStore(ctx context.Context, storeID uint64) error {
	if err := s.contestRepo.DeactivateStore(ctx, storeID); err != nil {
		return fmt.Errorf("disconnect store %d: %w", storeID, err)
	}
	s.logger.WithField("store_id", storeID).Info("store disconnected")
	return nil
}
