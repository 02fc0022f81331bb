package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wallet-sync/internal/types"
)

// PaymentRecord represents an incoming payment created by the backend.
// Records are only mutated by re-fetch, except for overlaying a locally
// observed terminal status.
type PaymentRecord struct {
	ID        string              `json:"id"`
	Value     decimal.Decimal     `json:"value"`
	Fee       decimal.Decimal     `json:"fee"`
	NetValue  decimal.Decimal     `json:"netValue"`
	Status    types.PaymentStatus `json:"status"`
	QRCode    string              `json:"qrCode,omitempty"`
	CopyPaste string              `json:"copyPaste,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

// WithStatus returns a copy of the record carrying the given status
func (p PaymentRecord) WithStatus(status types.PaymentStatus) PaymentRecord {
	p.Status = status
	return p
}

// WithdrawRecord represents an outgoing withdrawal
type WithdrawRecord struct {
	ID        string               `json:"id"`
	Amount    decimal.Decimal      `json:"amount"`
	Status    types.WithdrawStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
}

// PaymentList is the envelope of GET /payments
type PaymentList struct {
	Payments []PaymentRecord `json:"payments"`
}

// WithdrawList is the envelope of GET /withdraws
type WithdrawList struct {
	Withdraws []WithdrawRecord `json:"withdraws"`
}

// FindPayment returns the payment with the given id, if present
func FindPayment(payments []PaymentRecord, id string) (PaymentRecord, bool) {
	for _, p := range payments {
		if p.ID == id {
			return p, true
		}
	}
	return PaymentRecord{}, false
}
