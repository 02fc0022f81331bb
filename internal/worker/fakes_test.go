package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-sync/internal/logging"
	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/scheduler"
	"github.com/wallet-sync/internal/types"
)

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeWalletAPI is a scripted in-memory backend
type fakeWalletAPI struct {
	mu           sync.Mutex
	balance      *models.BalanceSnapshot
	balanceErr   error
	profile      *models.UserProfile
	profileErr   error
	payments     []models.PaymentRecord
	paymentsErr  error
	withdraws    []models.WithdrawRecord
	withdrawsErr error
	// paymentPage, when set, overrides payments per ListPayments call (1-based)
	paymentPage func(call int) ([]models.PaymentRecord, error)

	// gate, when set, blocks GetBalance until closed
	gate chan struct{}
	// paymentGate, when set, blocks ListPayments until closed
	paymentGate chan struct{}
	// profileHold, when set, blocks GetUser until closed even after cancellation
	profileHold chan struct{}

	paymentCalls atomic.Int32
	balanceCalls atomic.Int32
	profileCalls atomic.Int32
	active       atomic.Int32
	maxActive    atomic.Int32
	limits       []int
}

func newFakeWalletAPI() *fakeWalletAPI {
	return &fakeWalletAPI{
		balance: &models.BalanceSnapshot{Balance: decimal.NewFromInt(100)},
		profile: &models.UserProfile{ID: "u1", Name: "Ada", Plan: "basic", Status: "active"},
		payments: []models.PaymentRecord{
			{ID: "p1", Value: decimal.NewFromInt(10), Status: types.PaymentPending, CreatedAt: epoch},
		},
		withdraws: []models.WithdrawRecord{
			{ID: "w1", Amount: decimal.NewFromInt(5), Status: types.WithdrawPending, CreatedAt: epoch},
		},
	}
}

func (f *fakeWalletAPI) set(fn func(f *fakeWalletAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeWalletAPI) GetBalance(ctx context.Context) (*models.BalanceSnapshot, error) {
	f.balanceCalls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		cur := f.maxActive.Load()
		if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	b := *f.balance
	return &b, nil
}

func (f *fakeWalletAPI) GetUser(context.Context) (*models.UserProfile, error) {
	f.profileCalls.Add(1)
	f.mu.Lock()
	hold := f.profileHold
	f.mu.Unlock()
	if hold != nil {
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeWalletAPI) ListPayments(ctx context.Context, limit int) ([]models.PaymentRecord, error) {
	call := int(f.paymentCalls.Add(1))

	f.mu.Lock()
	gate := f.paymentGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.paymentPage != nil {
		return f.paymentPage(call)
	}
	if f.paymentsErr != nil {
		return nil, f.paymentsErr
	}
	return append([]models.PaymentRecord(nil), f.payments...), nil
}

func (f *fakeWalletAPI) ListWithdraws(_ context.Context, limit int) ([]models.WithdrawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.withdrawsErr != nil {
		return nil, f.withdrawsErr
	}
	return append([]models.WithdrawRecord(nil), f.withdraws...), nil
}

func newTestController(api *fakeWalletAPI) (*SyncController, *scheduler.FakeClock) {
	clock := scheduler.NewFakeClock(epoch)
	c, err := NewSyncController(&SyncControllerConfig{
		API:    api,
		Clock:  clock,
		Logger: logging.NewNopLogger(),
	})
	if err != nil {
		panic(err)
	}
	return c, clock
}

// reconcileRecorder captures ReconcilePayment calls
type reconcileRecorder struct {
	mu      sync.Mutex
	records []models.PaymentRecord
}

func (r *reconcileRecorder) ReconcilePayment(p models.PaymentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, p)
}

func (r *reconcileRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func payment(id string, status types.PaymentStatus) models.PaymentRecord {
	return models.PaymentRecord{ID: id, Value: decimal.NewFromInt(25), Status: status, CreatedAt: epoch}
}
