package worker

import (
	"context"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/types"
)

// WithdrawTracker turns successive wallet states into completion events.
// A withdrawal fires once, when it is seen moving into COMPLETED from a
// non-terminal status. Records first seen already completed are history and
// never fire.
type WithdrawTracker struct {
	onCompleted func(models.WithdrawRecord)

	identity string
	seen     map[string]types.WithdrawStatus
}

// NewWithdrawTracker creates a tracker calling onCompleted for each completion
func NewWithdrawTracker(onCompleted func(models.WithdrawRecord)) *WithdrawTracker {
	return &WithdrawTracker{
		onCompleted: onCompleted,
		seen:        make(map[string]types.WithdrawStatus),
	}
}

// Observe compares state with the previous one and returns the withdrawals
// that completed in between
func (t *WithdrawTracker) Observe(state models.WalletState) []models.WithdrawRecord {
	if state.Identity != t.identity {
		t.identity = state.Identity
		t.seen = make(map[string]types.WithdrawStatus)
	}

	var completed []models.WithdrawRecord
	for _, w := range state.Withdraws {
		prev, known := t.seen[w.ID]
		t.seen[w.ID] = w.Status
		if known && !prev.IsTerminal() && w.Status == types.WithdrawCompleted {
			completed = append(completed, w)
		}
	}

	if t.onCompleted != nil {
		for _, w := range completed {
			t.onCompleted(w)
		}
	}
	return completed
}

// Run observes states until ctx is done or updates is closed
func (t *WithdrawTracker) Run(ctx context.Context, updates <-chan models.WalletState) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			t.Observe(state)
		}
	}
}
