package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/apenugon/testgrowth-sub000/internal/model"
)

// Contest window [day 0, day 10], store joins at day 2. An order dated day 1
// must not count; an order dated day 3 for $50.00 lands as 5000 cents / 1.
func TestConsumerLateJoinAndWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contest, store, day(2))
	consumer := NewConsumerService(db, newTestLogger())

	// before join, inside window
	early := orderMessage(t, model.TopicOrdersCreate, 100, "10.00", day(1), store.ShopDomain)
	require.Equal(t, OutcomeApplied, consumer.Process(ctx, early))
	require.True(t, early.acked)

	b := getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 0, b.TotalSales)
	require.EqualValues(t, 0, b.OrderCount)

	// after join
	qualifying := orderMessage(t, model.TopicOrdersCreate, 101, "50.00", day(3), store.ShopDomain)
	require.Equal(t, OutcomeApplied, consumer.Process(ctx, qualifying))

	b = getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 5000, b.TotalSales)
	require.EqualValues(t, 1, b.OrderCount)

	// outside the contest window entirely
	late := orderMessage(t, model.TopicOrdersCreate, 102, "99.00", day(11), store.ShopDomain)
	require.Equal(t, OutcomeApplied, consumer.Process(ctx, late))

	b = getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 5000, b.TotalSales)
	require.EqualValues(t, 1, b.OrderCount)

	// participant cache tracks the store balance
	var p model.ContestParticipant
	require.NoError(t, db.Where("contest_id = ? AND user_id = ?", contest.ID, store.UserID).First(&p).Error)
	require.EqualValues(t, 5000, p.TotalSales)
	require.EqualValues(t, 1, p.OrderCount)
}

// A refund strictly decreases total sales and leaves the order count alone.
func TestConsumerRefundSign(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contest, store, day(2))
	consumer := NewConsumerService(db, newTestLogger())

	require.Equal(t, OutcomeApplied, consumer.Process(ctx,
		orderMessage(t, model.TopicOrdersCreate, 101, "50.00", day(3), store.ShopDomain)))
	require.Equal(t, OutcomeApplied, consumer.Process(ctx,
		refundMessage(t, 501, "20.00", day(4), store.ShopDomain)))

	b := getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 3000, b.TotalSales)
	require.EqualValues(t, 1, b.OrderCount)
}

// Redelivering the same notification must not double-count: the ledger
// uniqueness on (store, order, type) turns it into an acked no-op.
func TestConsumerDuplicateDelivery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contest, store, day(2))
	consumer := NewConsumerService(db, newTestLogger())

	first := orderMessage(t, model.TopicOrdersCreate, 101, "50.00", day(3), store.ShopDomain)
	require.Equal(t, OutcomeApplied, consumer.Process(ctx, first))

	second := orderMessage(t, model.TopicOrdersCreate, 101, "50.00", day(3), store.ShopDomain)
	require.Equal(t, OutcomeDuplicate, consumer.Process(ctx, second))
	require.True(t, second.acked)
	require.False(t, second.nacked)

	b := getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 5000, b.TotalSales)
	require.EqualValues(t, 1, b.OrderCount)

	var ledgerRows int64
	require.NoError(t, db.Model(&model.OrderEvent{}).Count(&ledgerRows).Error)
	require.EqualValues(t, 1, ledgerRows)
}

// A participant who joined after provisioning already ran has no balance row
// yet; the first qualifying event must create it, not vanish into a zero-row
// UPDATE.
func TestConsumerCreatesMissingBalanceRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	require.NoError(t, db.Create(&model.ContestParticipant{
		ContestID: contest.ID,
		UserID:    store.UserID,
		StoreID:   store.ID,
		JoinedAt:  day(0),
	}).Error)
	consumer := NewConsumerService(db, newTestLogger())

	require.Equal(t, OutcomeApplied, consumer.Process(ctx,
		orderMessage(t, model.TopicOrdersCreate, 101, "50.00", day(3), store.ShopDomain)))

	b := getBalance(t, db, contest.ID, store.ID)
	require.EqualValues(t, 5000, b.TotalSales)
	require.EqualValues(t, 1, b.OrderCount)
}

// Unknown stores and malformed payloads are acked and dropped, never retried.
func TestConsumerDrops(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	consumer := NewConsumerService(db, newTestLogger())

	orphan := orderMessage(t, model.TopicOrdersCreate, 100, "10.00", day(3), "ghost.myshopify.com")
	require.Equal(t, OutcomeDropped, consumer.Process(ctx, orphan))
	require.True(t, orphan.acked)
	require.False(t, orphan.nacked)

	malformed := &fakeMessage{
		data:  []byte("{not json"),
		attrs: map[string]string{attrTopic: model.TopicOrdersCreate, attrShopDomain: "alpha.myshopify.com"},
	}
	require.Equal(t, OutcomeDropped, consumer.Process(ctx, malformed))
	require.True(t, malformed.acked)

	unknownTopic := &fakeMessage{
		data:  []byte("{}"),
		attrs: map[string]string{attrTopic: "carts/update"},
	}
	require.Equal(t, OutcomeDropped, consumer.Process(ctx, unknownTopic))
	require.True(t, unknownTopic.acked)
}

// An event only lands in the contests the store actually participates in.
func TestConsumerFansOutPerContest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contestA := seedContest(t, db, model.ContestStatusActive)
	contestB := seedContest(t, db, model.ContestStatusActive)
	closed := seedContest(t, db, model.ContestStatusClosed)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contestA, store, day(0))
	seedParticipant(t, db, contestB, store, day(0))
	seedParticipant(t, db, closed, store, day(0))
	consumer := NewConsumerService(db, newTestLogger())

	require.Equal(t, OutcomeApplied, consumer.Process(ctx,
		orderMessage(t, model.TopicOrdersPaid, 300, "12.34", day(5), store.ShopDomain)))

	require.EqualValues(t, 1234, getBalance(t, db, contestA.ID, store.ID).TotalSales)
	require.EqualValues(t, 1234, getBalance(t, db, contestB.ID, store.ID).TotalSales)
	require.EqualValues(t, 0, getBalance(t, db, closed.ID, store.ID).TotalSales)
}
