package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

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

func ledgerRow(storeID uint64, orderID, eventType string, amount int64, occurredAt time.Time) *model.OrderEvent {
	return &model.OrderEvent{
		StoreID:     storeID,
		OrderID:     orderID,
		EventType:   eventType,
		Amount:      amount,
		Currency:    "USD",
		OccurredAt:  occurredAt,
		ProcessedAt: time.Now().UTC(),
		RawPayload:  []byte(`{}`),
	}
}
