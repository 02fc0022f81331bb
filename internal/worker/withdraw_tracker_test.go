package worker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/types"
)

func withdraw(id string, status types.WithdrawStatus) models.WithdrawRecord {
	return models.WithdrawRecord{ID: id, Amount: decimal.NewFromInt(5), Status: status, CreatedAt: epoch}
}

func walletState(identity string, withdraws ...models.WithdrawRecord) models.WalletState {
	return models.WalletState{Identity: identity, Withdraws: withdraws}
}

func TestWithdrawTracker_FiresOnTransition(t *testing.T) {
	var fired []string
	tr := NewWithdrawTracker(func(w models.WithdrawRecord) { fired = append(fired, w.ID) })

	assert.Empty(t, tr.Observe(walletState("u1", withdraw("w1", types.WithdrawPending), withdraw("w2", types.WithdrawCompleted))))
	assert.Empty(t, tr.Observe(walletState("u1", withdraw("w1", types.WithdrawProcessing), withdraw("w2", types.WithdrawCompleted))))

	got := tr.Observe(walletState("u1", withdraw("w1", types.WithdrawCompleted), withdraw("w2", types.WithdrawCompleted)))
	require.Len(t, got, 1)
	assert.Equal(t, "w1", got[0].ID)

	// no repeat once completed
	assert.Empty(t, tr.Observe(walletState("u1", withdraw("w1", types.WithdrawCompleted))))
	assert.Equal(t, []string{"w1"}, fired)
}

func TestWithdrawTracker_IgnoresFailedAndNew(t *testing.T) {
	tr := NewWithdrawTracker(nil)

	tr.Observe(walletState("u1", withdraw("w1", types.WithdrawPending)))
	assert.Empty(t, tr.Observe(walletState("u1", withdraw("w1", types.WithdrawFailed), withdraw("w3", types.WithdrawCompleted))))
	// a failed withdrawal is terminal and cannot later complete
	assert.Empty(t, tr.Observe(walletState("u1", withdraw("w1", types.WithdrawCompleted))))
}

func TestWithdrawTracker_IdentityChangeResets(t *testing.T) {
	tr := NewWithdrawTracker(nil)

	tr.Observe(walletState("u1", withdraw("w1", types.WithdrawPending)))
	assert.Empty(t, tr.Observe(walletState("u2", withdraw("w1", types.WithdrawCompleted))))
}

func TestWithdrawTracker_RunConsumesController(t *testing.T) {
	api := newFakeWalletAPI()
	api.set(func(f *fakeWalletAPI) { f.withdraws = []models.WithdrawRecord{withdraw("w1", types.WithdrawPending)} })
	controller, clock := newTestController(api)
	defer controller.Stop()

	done := make(chan models.WithdrawRecord, 1)
	tr := NewWithdrawTracker(func(w models.WithdrawRecord) { done <- w })

	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// unbuffered so each hand-off waits for the tracker
	forward := make(chan models.WalletState)
	go tr.Run(ctx, forward)

	next := func() models.WalletState {
		select {
		case st := <-updates:
			return st
		case <-time.After(time.Second):
			t.Fatal("no state published")
		}
		return models.WalletState{}
	}

	require.True(t, controller.Start(context.Background(), "user-1"))
	controller.waitBackground()
	forward <- next()

	api.set(func(f *fakeWalletAPI) { f.withdraws = []models.WithdrawRecord{withdraw("w1", types.WithdrawCompleted)} })
	clock.Advance(10 * time.Second)
	forward <- next()

	select {
	case w := <-done:
		assert.Equal(t, "w1", w.ID)
	case <-time.After(time.Second):
		t.Fatal("completion not observed")
	}
}
