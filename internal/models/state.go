package models

import "time"

// WalletState is an immutable snapshot of everything the sync controller
// knows about the bound identity. Nil pointers mean "never fetched".
type WalletState struct {
	Identity    string           `json:"identity"`
	Balance     *BalanceSnapshot `json:"balance,omitempty"`
	Profile     *UserProfile     `json:"profile,omitempty"`
	Payments    []PaymentRecord  `json:"payments"`
	Withdraws   []WithdrawRecord `json:"withdraws"`
	LastSyncAt  time.Time        `json:"lastSyncAt"`
	LastCycleID string           `json:"lastCycleId,omitempty"`
}

// Clone returns a deep copy safe to hand to consumers
func (s WalletState) Clone() WalletState {
	out := s
	if s.Balance != nil {
		b := *s.Balance
		out.Balance = &b
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Payments = append([]PaymentRecord(nil), s.Payments...)
	out.Withdraws = append([]WithdrawRecord(nil), s.Withdraws...)
	return out
}
