package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/config"
	"github.com/apenugon/testgrowth-sub000/internal/interfaces"
	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/queue"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

// SetupResult reports a provisioning pass. Failures are per (store, topic) and
// never abort the remaining stores.
type SetupResult struct {
	ContestID       uint64        `json:"contest_id"`
	SucceededStores []uint64      `json:"succeeded_stores"`
	Failures        []ItemFailure `json:"failures,omitempty"`
	Created         int           `json:"created"`
	AlreadyActive   int           `json:"already_active"`
}

// TeardownResult reports a deprovisioning pass.
type TeardownResult struct {
	ContestID uint64        `json:"contest_id"`
	Deleted   int           `json:"deleted"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// ItemFailure names one failed (store, topic) registration or deletion.
type ItemFailure struct {
	StoreID uint64 `json:"store_id"`
	Topic   string `json:"topic"`
	Error   string `json:"error"`
}

// ProvisionerService creates and tears down upstream webhook registrations in
// lockstep with contest lifecycle transitions.
type ProvisionerService struct {
	contestRepo repository.ContestRepository
	subRepo     repository.SubscriptionRepository
	balanceRepo repository.BalanceRepository
	registrar   interfaces.WebhookRegistrar
	pubsubCfg   *config.PubSubConfig
	logger      *logrus.Logger
}

func NewProvisionerService(
	contestRepo repository.ContestRepository,
	subRepo repository.SubscriptionRepository,
	balanceRepo repository.BalanceRepository,
	registrar interfaces.WebhookRegistrar,
	pubsubCfg *config.PubSubConfig,
	logger *logrus.Logger,
) *ProvisionerService {
	return &ProvisionerService{
		contestRepo: contestRepo,
		subRepo:     subRepo,
		balanceRepo: balanceRepo,
		registrar:   registrar,
		pubsubCfg:   pubsubCfg,
		logger:      logger,
	}
}

// SetupWebhooksForContest ensures exactly one active subscription per
// (store, topic) for every distinct participating store, and initializes the
// zero balance rows. Idempotent: existing active registrations are kept, never
// duplicated.
func (s *ProvisionerService) SetupWebhooksForContest(ctx context.Context, contestID uint64) (*SetupResult, error) {
	participants, err := s.contestRepo.ListParticipants(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("list participants of contest %d: %w", contestID, err)
	}

	// distinct stores among participants
	storeIDs := make(map[uint64]struct{}, len(participants))
	ordered := make([]uint64, 0, len(participants))
	for _, p := range participants {
		if _, ok := storeIDs[p.StoreID]; !ok {
			storeIDs[p.StoreID] = struct{}{}
			ordered = append(ordered, p.StoreID)
		}
	}

	result := &SetupResult{ContestID: contestID}
	for _, storeID := range ordered {
		store, err := s.contestRepo.GetStore(ctx, storeID)
		if err != nil {
			s.logger.WithError(err).WithField("store_id", storeID).Error("load store for provisioning")
			result.Failures = append(result.Failures, ItemFailure{StoreID: storeID, Error: err.Error()})
			continue
		}
		if !store.IsActive {
			s.logger.WithField("store_id", storeID).Warn("skipping disconnected store")
			continue
		}

		if err := s.balanceRepo.EnsureBalance(ctx, contestID, storeID); err != nil {
			result.Failures = append(result.Failures, ItemFailure{StoreID: storeID, Error: err.Error()})
			continue
		}

		storeOK := true
		for _, kind := range model.Kinds() {
			created, err := s.ensureSubscription(ctx, contestID, store, kind)
			if err != nil {
				storeOK = false
				s.logger.WithError(err).WithFields(logrus.Fields{
					"contest_id": contestID,
					"store_id":   storeID,
					"topic":      kind.Topic,
				}).Error("register webhook")
				result.Failures = append(result.Failures, ItemFailure{
					StoreID: storeID, Topic: kind.Topic, Error: err.Error(),
				})
				continue
			}
			if created {
				result.Created++
			} else {
				result.AlreadyActive++
			}
		}
		if storeOK {
			result.SucceededStores = append(result.SucceededStores, storeID)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"contest_id": contestID,
		"created":    result.Created,
		"existing":   result.AlreadyActive,
		"failures":   len(result.Failures),
	}).Info("webhook setup finished")
	return result, nil
}

// ensureSubscription registers one (store, topic) webhook unless an active
// subscription already exists. Returns whether a registration was created.
func (s *ProvisionerService) ensureSubscription(ctx context.Context, contestID uint64, store *model.Store, kind model.EventKind) (bool, error) {
	_, err := s.subRepo.GetActive(ctx, contestID, store.ID, kind.Topic)
	if err == nil {
		return false, nil
	}
	if err != repository.ErrNotFound {
		return false, err
	}

	address := queue.Address(s.pubsubCfg.Project, kind.QueueTopic)
	webhookID, err := s.registrar.CreateWebhook(ctx, store.ShopDomain, store.AccessToken, kind.Topic, address)
	if err != nil {
		return false, err
	}
	if err := s.subRepo.Create(ctx, &model.WebhookSubscription{
		ContestID: contestID,
		StoreID:   store.ID,
		Topic:     kind.Topic,
		WebhookID: webhookID,
		IsActive:  true,
	}); err != nil {
		return false, fmt.Errorf("record subscription %s: %w", webhookID, err)
	}
	return true, nil
}

// RemoveWebhooksForContest deletes every active upstream registration of the
// contest and marks the subscription rows inactive. A contest with no active
// subscriptions succeeds with zero deletions.
func (s *ProvisionerService) RemoveWebhooksForContest(ctx context.Context, contestID uint64) (*TeardownResult, error) {
	subs, err := s.subRepo.ListActiveByContest(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions of contest %d: %w", contestID, err)
	}

	result := &TeardownResult{ContestID: contestID}
	for _, sub := range subs {
		store, err := s.contestRepo.GetStore(ctx, sub.StoreID)
		if err != nil {
			result.Failures = append(result.Failures, ItemFailure{StoreID: sub.StoreID, Topic: sub.Topic, Error: err.Error()})
			continue
		}
		if err := s.registrar.DeleteWebhook(ctx, store.ShopDomain, store.AccessToken, sub.WebhookID); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"contest_id": contestID,
				"store_id":   sub.StoreID,
				"topic":      sub.Topic,
			}).Error("delete webhook")
			result.Failures = append(result.Failures, ItemFailure{StoreID: sub.StoreID, Topic: sub.Topic, Error: err.Error()})
			continue
		}
		if err := s.subRepo.MarkInactive(ctx, sub.ID); err != nil {
			result.Failures = append(result.Failures, ItemFailure{StoreID: sub.StoreID, Topic: sub.Topic, Error: err.Error()})
			continue
		}
		result.Deleted++
	}

	s.logger.WithFields(logrus.Fields{
		"contest_id": contestID,
		"deleted":    result.Deleted,
		"failures":   len(result.Failures),
	}).Info("webhook teardown finished")
	return result, nil
}
