package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/queue"
)

// Engine is the webhook provisioning / event consumption pair. It is built
// once at startup; deployments without a managed queue get the disabled
// implementation behind the same interface, so call sites never branch on
// configuration.
type Engine interface {
	SetupWebhooksForContest(ctx context.Context, contestID uint64) (*SetupResult, error)
	RemoveWebhooksForContest(ctx context.Context, contestID uint64) (*TeardownResult, error)
	// Run consumes the queue until ctx is done. Blocks the caller.
	Run(ctx context.Context) error
}

type ingestionEngine struct {
	*ProvisionerService
	consumer   *ConsumerService
	subscriber queue.Subscriber
}

// NewEngine assembles the live engine from its explicitly constructed parts.
func NewEngine(provisioner *ProvisionerService, consumer *ConsumerService, subscriber queue.Subscriber) Engine {
	return &ingestionEngine{
		ProvisionerService: provisioner,
		consumer:           consumer,
		subscriber:         subscriber,
	}
}

func (e *ingestionEngine) Run(ctx context.Context) error {
	return e.subscriber.Run(ctx, e.consumer.Handler())
}

// disabledEngine is the null-object used when no queue is configured.
type disabledEngine struct {
	logger *logrus.Logger
}

func NewDisabledEngine(logger *logrus.Logger) Engine {
	return &disabledEngine{logger: logger}
}

func (e *disabledEngine) SetupWebhooksForContest(_ context.Context, contestID uint64) (*SetupResult, error) {
	e.logger.WithField("contest_id", contestID).Info("ingestion disabled, skipping webhook setup")
	return &SetupResult{ContestID: contestID}, nil
}

func (e *disabledEngine) RemoveWebhooksForContest(_ context.Context, contestID uint64) (*TeardownResult, error) {
	e.logger.WithField("contest_id", contestID).Info("ingestion disabled, skipping webhook teardown")
	return &TeardownResult{ContestID: contestID}, nil
}

func (e *disabledEngine) Run(ctx context.Context) error {
	e.logger.Info("ingestion disabled, no consumer started")
	<-ctx.Done()
	return nil
}
