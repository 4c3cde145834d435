package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

// RecalcService rebuilds cached balances from the ledger. Used to repair
// drift: consumer bugs, filter changes, reprocessing gaps. Deterministic and
// idempotent; not safe to run concurrently for the same participant (last
// writer wins), callers serialize that.
type RecalcService struct {
	contestRepo repository.ContestRepository
	ledgerRepo  repository.LedgerRepository
	balanceRepo repository.BalanceRepository
	logger      *logrus.Logger
}

func NewRecalcService(
	contestRepo repository.ContestRepository,
	ledgerRepo repository.LedgerRepository,
	balanceRepo repository.BalanceRepository,
	logger *logrus.Logger,
) *RecalcService {
	return &RecalcService{
		contestRepo: contestRepo,
		ledgerRepo:  ledgerRepo,
		balanceRepo: balanceRepo,
		logger:      logger,
	}
}

// RecalculateParticipantBalances re-derives one participant's totals from the
// ledger, scanning events in [max(startAt, joinedAt), endAt], and overwrites
// the cached balance and participant rows.
func (s *RecalcService) RecalculateParticipantBalances(ctx context.Context, contestID, userID uint64) error {
	contest, err := s.contestRepo.GetContest(ctx, contestID)
	if err != nil {
		return fmt.Errorf("load contest %d: %w", contestID, err)
	}
	participant, err := s.contestRepo.GetParticipant(ctx, contestID, userID)
	if err != nil {
		return fmt.Errorf("load participant %d of contest %d: %w", userID, contestID, err)
	}

	from := contest.StartAt
	if participant.JoinedAt.After(from) {
		from = participant.JoinedAt
	}
	events, err := s.ledgerRepo.ListStoreEventsInWindow(ctx, participant.StoreID, from, contest.EndAt)
	if err != nil {
		return fmt.Errorf("scan ledger for store %d: %w", participant.StoreID, err)
	}

	totalSales, orderCount := deriveTotals(events)

	if err := s.balanceRepo.OverwriteBalance(ctx, contestID, participant.StoreID, totalSales, orderCount); err != nil {
		return fmt.Errorf("overwrite balance of store %d: %w", participant.StoreID, err)
	}
	if err := s.balanceRepo.OverwriteParticipantTotals(ctx, contestID, userID, totalSales, orderCount); err != nil {
		return fmt.Errorf("overwrite totals of participant %d: %w", userID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"contest_id":  contestID,
		"user_id":     userID,
		"store_id":    participant.StoreID,
		"events":      len(events),
		"total_sales": totalSales,
		"order_count": orderCount,
	}).Info("participant balances recalculated")
	return nil
}

// RecalculateAllContestBalances rebuilds every participant of the contest
// sequentially. The first failure aborts the batch and names the participant.
func (s *RecalcService) RecalculateAllContestBalances(ctx context.Context, contestID uint64) error {
	participants, err := s.contestRepo.ListParticipants(ctx, contestID)
	if err != nil {
		return fmt.Errorf("list participants of contest %d: %w", contestID, err)
	}
	for _, p := range participants {
		if err := s.RecalculateParticipantBalances(ctx, contestID, p.UserID); err != nil {
			return fmt.Errorf("recalculate participant %d: %w", p.UserID, err)
		}
	}
	s.logger.WithFields(logrus.Fields{
		"contest_id":   contestID,
		"participants": len(participants),
	}).Info("contest balances recalculated")
	return nil
}

// deriveTotals folds ledger rows into (totalSales, orderCount). Amounts are
// stored signed; the count contribution comes from the event kind.
func deriveTotals(events []*model.OrderEvent) (int64, int64) {
	var totalSales, orderCount int64
	for _, e := range events {
		kind, ok := model.KindForType(e.EventType)
		if !ok {
			continue
		}
		totalSales += e.Amount
		orderCount += kind.CountDelta
	}
	return totalSales, orderCount
}
