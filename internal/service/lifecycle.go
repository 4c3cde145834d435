package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

var ErrInvalidTransition = errors.New("invalid contest status transition")

// LifecycleService drives contest status transitions and the webhook
// provisioning that goes with them. Every transition is idempotent: re-running
// it never duplicates registrations, balance rows or settlement ranks.
type LifecycleService struct {
	contestRepo repository.ContestRepository
	balanceRepo repository.BalanceRepository
	engine      Engine
	logger      *logrus.Logger
}

func NewLifecycleService(
	contestRepo repository.ContestRepository,
	balanceRepo repository.BalanceRepository,
	engine Engine,
	logger *logrus.Logger,
) *LifecycleService {
	return &LifecycleService{
		contestRepo: contestRepo,
		balanceRepo: balanceRepo,
		engine:      engine,
		logger:      logger,
	}
}

// Activate moves a draft contest to active and provisions webhooks for every
// participating store. Re-activating an active contest only re-runs the
// (idempotent) provisioning pass.
func (s *LifecycleService) Activate(ctx context.Context, contestID uint64) (*SetupResult, error) {
	contest, err := s.contestRepo.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	switch contest.Status {
	case model.ContestStatusDraft:
		if err := s.contestRepo.UpdateContestStatus(ctx, contestID, model.ContestStatusActive); err != nil {
			return nil, fmt.Errorf("activate contest %d: %w", contestID, err)
		}
	case model.ContestStatusActive:
		// already active, fall through to provisioning
	default:
		return nil, fmt.Errorf("%w: %s -> active", ErrInvalidTransition, contest.Status)
	}

	result, err := s.engine.SetupWebhooksForContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("contest_id", contestID).Info("contest activated")
	return result, nil
}

// Close moves an active contest to closed, tears down its webhooks and runs
// final settlement: participants ranked by the contest metric.
func (s *LifecycleService) Close(ctx context.Context, contestID uint64) (*TeardownResult, error) {
	contest, err := s.contestRepo.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	switch contest.Status {
	case model.ContestStatusActive:
		if err := s.contestRepo.UpdateContestStatus(ctx, contestID, model.ContestStatusClosed); err != nil {
			return nil, fmt.Errorf("close contest %d: %w", contestID, err)
		}
	case model.ContestStatusClosed:
		// re-close is a no-op transition, teardown and settlement are idempotent
	default:
		return nil, fmt.Errorf("%w: %s -> closed", ErrInvalidTransition, contest.Status)
	}

	result, err := s.engine.RemoveWebhooksForContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, contest); err != nil {
		return nil, fmt.Errorf("settle contest %d: %w", contestID, err)
	}
	s.logger.WithField("contest_id", contestID).Info("contest closed and settled")
	return result, nil
}

// Cancel terminates a draft or active contest. Webhook cleanup is best-effort;
// a cancelled contest needs no settlement.
func (s *LifecycleService) Cancel(ctx context.Context, contestID uint64) error {
	contest, err := s.contestRepo.GetContest(ctx, contestID)
	if err != nil {
		return err
	}
	switch contest.Status {
	case model.ContestStatusDraft, model.ContestStatusActive:
	case model.ContestStatusCancelled:
		return nil
	default:
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, contest.Status)
	}

	if _, err := s.engine.RemoveWebhooksForContest(ctx, contestID); err != nil {
		s.logger.WithError(err).WithField("contest_id", contestID).Warn("best-effort webhook cleanup failed")
	}
	if err := s.contestRepo.UpdateContestStatus(ctx, contestID, model.ContestStatusCancelled); err != nil {
		return fmt.Errorf("cancel contest %d: %w", contestID, err)
	}
	s.logger.WithField("contest_id", contestID).Info("contest cancelled")
	return nil
}

// Sweep runs the scheduled transitions: draft contests whose start has passed
// become active, active contests whose end has passed are closed. Safe to call
// at any frequency.
func (s *LifecycleService) Sweep(ctx context.Context, now time.Time) error {
	due, err := s.contestRepo.ListContestsByStatusDue(ctx, model.ContestStatusDraft, "start_at", now)
	if err != nil {
		return fmt.Errorf("list contests due to start: %w", err)
	}
	for _, c := range due {
		if _, err := s.Activate(ctx, c.ID); err != nil {
			s.logger.WithError(err).WithField("contest_id", c.ID).Error("sweep: activate")
		}
	}

	ending, err := s.contestRepo.ListContestsByStatusDue(ctx, model.ContestStatusActive, "end_at", now)
	if err != nil {
		return fmt.Errorf("list contests due to end: %w", err)
	}
	for _, c := range ending {
		if _, err := s.Close(ctx, c.ID); err != nil {
			s.logger.WithError(err).WithField("contest_id", c.ID).Error("sweep: close")
		}
	}

	if len(due) > 0 || len(ending) > 0 {
		s.logger.WithFields(logrus.Fields{
			"activated": len(due),
			"closed":    len(ending),
		}).Info("lifecycle sweep finished")
	}
	return nil
}

// settle ranks the contest's stores by its metric and writes each
// participant's final rank. Rewriting the same ranks on re-close is harmless.
func (s *LifecycleService) settle(ctx context.Context, contest *model.Contest) error {
	participants, err := s.contestRepo.ListParticipants(ctx, contest.ID)
	if err != nil {
		return err
	}
	byStore := make(map[uint64][]*model.ContestParticipant, len(participants))
	for _, p := range participants {
		byStore[p.StoreID] = append(byStore[p.StoreID], p)
	}

	balances, err := s.balanceRepo.ListContestBalances(ctx, contest.ID)
	if err != nil {
		return err
	}
	if contest.Metric == model.MetricOrderCount {
		sort.SliceStable(balances, func(i, j int) bool {
			if balances[i].OrderCount != balances[j].OrderCount {
				return balances[i].OrderCount > balances[j].OrderCount
			}
			if balances[i].TotalSales != balances[j].TotalSales {
				return balances[i].TotalSales > balances[j].TotalSales
			}
			return balances[i].StoreID < balances[j].StoreID
		})
	}

	// balance rows of fully withdrawn stores hold no rank position
	ranked := make([]*model.ContestStoreBalance, 0, len(balances))
	for _, b := range balances {
		if len(byStore[b.StoreID]) > 0 {
			ranked = append(ranked, b)
		}
	}

	for i, b := range ranked {
		for _, p := range byStore[b.StoreID] {
			if err := s.contestRepo.SetParticipantFinalRank(ctx, p.ID, i+1); err != nil {
				return err
			}
		}
	}
	return nil
}
