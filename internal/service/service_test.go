package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/apenugon/testgrowth-sub000/internal/config"
	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/queue"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

// day 0 of the test contest window
var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Contest{},
		&model.Store{},
		&model.ContestParticipant{},
		&model.WebhookSubscription{},
		&model.ContestStoreBalance{},
		&model.OrderEvent{},
	))
	return db
}

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// seedContest creates an active contest spanning [day 0, day 10].
func seedContest(t *testing.T, db *gorm.DB, status string) *model.Contest {
	t.Helper()
	c := &model.Contest{
		Name:      "spring sales sprint",
		Metric:    model.MetricTotalSales,
		StartAt:   day(0),
		EndAt:     day(10),
		Status:    status,
		CreatorID: 1,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func seedStore(t *testing.T, db *gorm.DB, userID uint64, domain string) *model.Store {
	t.Helper()
	s := &model.Store{
		ShopDomain:  domain,
		AccessToken: "shpat_test",
		UserID:      userID,
		IsActive:    true,
	}
	require.NoError(t, db.Create(s).Error)
	return s
}

// seedParticipant joins the store's owner to the contest at joinedAt.
func seedParticipant(t *testing.T, db *gorm.DB, contest *model.Contest, store *model.Store, joinedAt time.Time) *model.ContestParticipant {
	t.Helper()
	p := &model.ContestParticipant{
		ContestID: contest.ID,
		UserID:    store.UserID,
		StoreID:   store.ID,
		JoinedAt:  joinedAt,
	}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, repository.NewBalanceRepository(db).EnsureBalance(context.Background(), contest.ID, store.ID))
	return p
}

// fakeRegistrar is an in-memory WebhookRegistrar. failTopics maps
// "domain|topic" to a forced error.
type fakeRegistrar struct {
	nextID     int
	created    map[string]string // "domain|topic" -> webhook id
	deleted    []string
	failTopics map[string]bool
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{
		created:    make(map[string]string),
		failTopics: make(map[string]bool),
	}
}

func (f *fakeRegistrar) CreateWebhook(_ context.Context, shopDomain, _, topic, _ string) (string, error) {
	key := shopDomain + "|" + topic
	if f.failTopics[key] {
		return "", fmt.Errorf("upstream rejected %s", key)
	}
	f.nextID++
	id := fmt.Sprintf("wh-%d", f.nextID)
	f.created[key] = id
	return id, nil
}

func (f *fakeRegistrar) DeleteWebhook(_ context.Context, _, _, webhookID string) error {
	f.deleted = append(f.deleted, webhookID)
	return nil
}

// fakeMessage is one queue delivery recording its ack/nack.
type fakeMessage struct {
	data   []byte
	attrs  map[string]string
	acked  bool
	nacked bool
}

func (m *fakeMessage) Data() []byte                { return m.data }
func (m *fakeMessage) Attribute(key string) string { return m.attrs[key] }
func (m *fakeMessage) Ack()                        { m.acked = true }
func (m *fakeMessage) Nack()                       { m.nacked = true }

func orderMessage(t *testing.T, topic string, orderID uint64, totalPrice string, createdAt time.Time, shopDomain string) *fakeMessage {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":          orderID,
		"total_price": totalPrice,
		"currency":    "USD",
		"created_at":  createdAt.Format(time.RFC3339),
	})
	require.NoError(t, err)
	return &fakeMessage{
		data: body,
		attrs: map[string]string{
			attrTopic:      topic,
			attrShopDomain: shopDomain,
		},
	}
}

func refundMessage(t *testing.T, refundID uint64, amount string, createdAt time.Time, shopDomain string) *fakeMessage {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":         refundID,
		"order_id":   refundID + 1000,
		"created_at": createdAt.Format(time.RFC3339),
		"transactions": []map[string]string{
			{"amount": amount, "currency": "USD"},
		},
	})
	require.NoError(t, err)
	return &fakeMessage{
		data: body,
		attrs: map[string]string{
			attrTopic:      model.TopicRefundsCreate,
			attrShopDomain: shopDomain,
		},
	}
}

// stubSubscriber satisfies queue.Subscriber where the consumer loop is not
// under test.
type stubSubscriber struct{}

func (stubSubscriber) Run(ctx context.Context, _ queue.Handler) error {
	<-ctx.Done()
	return nil
}

func newTestProvisioner(db *gorm.DB, registrar *fakeRegistrar) *ProvisionerService {
	return NewProvisionerService(
		repository.NewContestRepository(db),
		repository.NewSubscriptionRepository(db),
		repository.NewBalanceRepository(db),
		registrar,
		&config.PubSubConfig{Project: "growth-test", SubscriptionPrefix: "growth-"},
		newTestLogger(),
	)
}

func getBalance(t *testing.T, db *gorm.DB, contestID, storeID uint64) *model.ContestStoreBalance {
	t.Helper()
	b, err := repository.NewBalanceRepository(db).GetBalance(context.Background(), contestID, storeID)
	require.NoError(t, err)
	return b
}
