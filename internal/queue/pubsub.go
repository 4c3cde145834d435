package queue

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"

	"github.com/apenugon/testgrowth-sub000/internal/config"
)

// PubSubSubscriber consumes the configured topic subscriptions from Google
// Cloud Pub/Sub. One subscription per topic; delivery is at-least-once and
// unordered, the consumer downstream is built for that.
type PubSubSubscriber struct {
	client          *pubsub.Client
	subscriptionIDs []string
	logger          *logrus.Logger
}

// NewPubSubSubscriber connects to the configured project. subscription ids are
// <prefix><queue-topic>, e.g. growth-orders-create.
func NewPubSubSubscriber(ctx context.Context, cfg *config.PubSubConfig, queueTopics []string, logger *logrus.Logger) (*PubSubSubscriber, error) {
	client, err := pubsub.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client for project %s: %w", cfg.Project, err)
	}
	ids := make([]string, 0, len(queueTopics))
	for _, topic := range queueTopics {
		ids = append(ids, cfg.SubscriptionPrefix+topic)
	}
	return &PubSubSubscriber{
		client:          client,
		subscriptionIDs: ids,
		logger:          logger,
	}, nil
}

// Run receives from every subscription until ctx is done or a subscription
// fails. Blocks the caller.
func (s *PubSubSubscriber) Run(ctx context.Context, handler Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(s.subscriptionIDs))

	for _, id := range s.subscriptionIDs {
		sub := s.client.Subscription(id)
		wg.Add(1)
		go func(id string, sub *pubsub.Subscription) {
			defer wg.Done()
			s.logger.WithField("subscription", id).Info("queue subscription started")
			err := sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
				handler(ctx, &pubsubMessage{m: m})
			})
			if err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("receive on %s: %w", id, err)
				cancel()
			}
		}(id, sub)
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}

// Close releases the underlying client.
func (s *PubSubSubscriber) Close() error {
	return s.client.Close()
}

type pubsubMessage struct {
	m *pubsub.Message
}

func (p *pubsubMessage) Data() []byte { return p.m.Data }

func (p *pubsubMessage) Attribute(key string) string { return p.m.Attributes[key] }

func (p *pubsubMessage) Ack() { p.m.Ack() }

func (p *pubsubMessage) Nack() { p.m.Nack() }
