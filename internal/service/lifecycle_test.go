package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/apenugon/testgrowth-sub000/internal/model"
	"github.com/apenugon/testgrowth-sub000/internal/repository"
)

func newLifecycle(db *gorm.DB, registrar *fakeRegistrar) *LifecycleService {
	provisioner := newTestProvisioner(db, registrar)
	consumer := NewConsumerService(db, newTestLogger())
	engine := NewEngine(provisioner, consumer, stubSubscriber{})
	return NewLifecycleService(
		repository.NewContestRepository(db),
		repository.NewBalanceRepository(db),
		engine,
		newTestLogger(),
	)
}

func contestStatus(t *testing.T, db *gorm.DB, id uint64) string {
	t.Helper()
	var c model.Contest
	require.NoError(t, db.First(&c, id).Error)
	return c.Status
}

// Activation provisions webhooks; re-activating is a no-op transition with an
// idempotent provisioning pass.
func TestActivateIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusDraft)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contest, store, day(0))

	registrar := newFakeRegistrar()
	lifecycle := newLifecycle(db, registrar)

	result, err := lifecycle.Activate(ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.Created)
	require.Equal(t, model.ContestStatusActive, contestStatus(t, db, contest.ID))

	again, err := lifecycle.Activate(ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, 0, again.Created)
	require.Equal(t, 3, again.AlreadyActive)
}

// Closing tears webhooks down and writes final ranks by the contest metric.
func TestCloseSettles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusDraft)
	alpha := seedStore(t, db, 7, "alpha.myshopify.com")
	beta := seedStore(t, db, 8, "beta.myshopify.com")
	seedParticipant(t, db, contest, alpha, day(0))
	seedParticipant(t, db, contest, beta, day(0))

	registrar := newFakeRegistrar()
	lifecycle := newLifecycle(db, registrar)
	_, err := lifecycle.Activate(ctx, contest.ID)
	require.NoError(t, err)

	balanceRepo := repository.NewBalanceRepository(db)
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, alpha.ID, 3000, 2))
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, beta.ID, 5000, 1))

	result, err := lifecycle.Close(ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, 6, result.Deleted)
	require.Equal(t, model.ContestStatusClosed, contestStatus(t, db, contest.ID))

	var pAlpha, pBeta model.ContestParticipant
	require.NoError(t, db.Where("contest_id = ? AND store_id = ?", contest.ID, alpha.ID).First(&pAlpha).Error)
	require.NoError(t, db.Where("contest_id = ? AND store_id = ?", contest.ID, beta.ID).First(&pBeta).Error)
	require.NotNil(t, pBeta.FinalRank)
	require.NotNil(t, pAlpha.FinalRank)
	require.Equal(t, 1, *pBeta.FinalRank) // higher total sales wins
	require.Equal(t, 2, *pAlpha.FinalRank)

	// re-close is tolerated and keeps the same ranks
	_, err = lifecycle.Close(ctx, contest.ID)
	require.NoError(t, err)
}

// A store whose participants all withdrew keeps its balance row but must not
// consume a rank position at settlement.
func TestCloseSkipsWithdrawnStores(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	alpha := seedStore(t, db, 7, "alpha.myshopify.com")
	beta := seedStore(t, db, 8, "beta.myshopify.com")
	seedParticipant(t, db, contest, alpha, day(0))
	seedParticipant(t, db, contest, beta, day(0))

	balanceRepo := repository.NewBalanceRepository(db)
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, alpha.ID, 9000, 3))
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, beta.ID, 3000, 1))

	// alpha withdraws; its balance row stays behind
	require.NoError(t, db.Where("contest_id = ? AND store_id = ?", contest.ID, alpha.ID).
		Delete(&model.ContestParticipant{}).Error)

	lifecycle := newLifecycle(db, newFakeRegistrar())
	_, err := lifecycle.Close(ctx, contest.ID)
	require.NoError(t, err)

	var pBeta model.ContestParticipant
	require.NoError(t, db.Where("contest_id = ? AND store_id = ?", contest.ID, beta.ID).First(&pBeta).Error)
	require.NotNil(t, pBeta.FinalRank)
	require.Equal(t, 1, *pBeta.FinalRank)
}

// An order_count contest ranks by count ahead of sales volume.
func TestCloseSettlesByOrderCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)
	require.NoError(t, db.Model(&model.Contest{}).Where("id = ?", contest.ID).
		Update("metric", model.MetricOrderCount).Error)
	alpha := seedStore(t, db, 7, "alpha.myshopify.com")
	beta := seedStore(t, db, 8, "beta.myshopify.com")
	seedParticipant(t, db, contest, alpha, day(0))
	seedParticipant(t, db, contest, beta, day(0))

	balanceRepo := repository.NewBalanceRepository(db)
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, alpha.ID, 3000, 7))
	require.NoError(t, balanceRepo.OverwriteBalance(ctx, contest.ID, beta.ID, 5000, 1))

	lifecycle := newLifecycle(db, newFakeRegistrar())
	_, err := lifecycle.Close(ctx, contest.ID)
	require.NoError(t, err)

	var pAlpha model.ContestParticipant
	require.NoError(t, db.Where("contest_id = ? AND store_id = ?", contest.ID, alpha.ID).First(&pAlpha).Error)
	require.Equal(t, 1, *pAlpha.FinalRank)
}

// The sweep drives due transitions and is safe to run repeatedly.
func TestSweep(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	dueDraft := seedContest(t, db, model.ContestStatusDraft) // window already started
	endedActive := seedContest(t, db, model.ContestStatusActive)
	require.NoError(t, db.Model(&model.Contest{}).Where("id = ?", endedActive.ID).
		Update("end_at", day(-1)).Error)
	future := seedContest(t, db, model.ContestStatusDraft)
	require.NoError(t, db.Model(&model.Contest{}).Where("id = ?", future.ID).
		Updates(map[string]interface{}{"start_at": day(20), "end_at": day(30)}).Error)

	lifecycle := newLifecycle(db, newFakeRegistrar())
	require.NoError(t, lifecycle.Sweep(ctx, day(5)))

	require.Equal(t, model.ContestStatusActive, contestStatus(t, db, dueDraft.ID))
	require.Equal(t, model.ContestStatusClosed, contestStatus(t, db, endedActive.ID))
	require.Equal(t, model.ContestStatusDraft, contestStatus(t, db, future.ID))

	// more frequent than the check interval: still safe
	require.NoError(t, lifecycle.Sweep(ctx, day(5)))
	require.NoError(t, lifecycle.Sweep(ctx, day(5)))
	require.Equal(t, model.ContestStatusActive, contestStatus(t, db, dueDraft.ID))
}

// Cancel is terminal and tolerates teardown trouble.
func TestCancel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusActive)

	lifecycle := newLifecycle(db, newFakeRegistrar())
	require.NoError(t, lifecycle.Cancel(ctx, contest.ID))
	require.Equal(t, model.ContestStatusCancelled, contestStatus(t, db, contest.ID))

	// terminal: no way back
	_, err := lifecycle.Activate(ctx, contest.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = lifecycle.Close(ctx, contest.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	// re-cancel is a no-op
	require.NoError(t, lifecycle.Cancel(ctx, contest.ID))
}

// The disabled engine is a usable null object: transitions still work, no
// webhooks are touched.
func TestLifecycleWithDisabledEngine(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	contest := seedContest(t, db, model.ContestStatusDraft)
	store := seedStore(t, db, 7, "alpha.myshopify.com")
	seedParticipant(t, db, contest, store, day(0))

	lifecycle := NewLifecycleService(
		repository.NewContestRepository(db),
		repository.NewBalanceRepository(db),
		NewDisabledEngine(newTestLogger()),
		newTestLogger(),
	)

	result, err := lifecycle.Activate(ctx, contest.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.Created)
	require.Equal(t, model.ContestStatusActive, contestStatus(t, db, contest.ID))

	var subs int64
	require.NoError(t, db.Model(&model.WebhookSubscription{}).Count(&subs).Error)
	require.EqualValues(t, 0, subs)
}
