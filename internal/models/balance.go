// Package models provides data models for the wallet sync client.
package models

import (
	"github.com/shopspring/decimal"
)

// BalanceSnapshot is the account balance as reported by GET /balance.
// It is replaced wholesale on each successful fetch.
type BalanceSnapshot struct {
	Balance    decimal.Decimal   `json:"balance"`
	Plan       PlanInfo          `json:"plan"`
	Statistics BalanceStatistics `json:"statistics"`
}

// PlanInfo holds the fee schedule of the user's plan
type PlanInfo struct {
	Name           string          `json:"name"`
	TransactionFee decimal.Decimal `json:"transactionFee"`
	MonthlyFee     decimal.Decimal `json:"monthlyFee"`
}

// BalanceStatistics holds lifetime totals
type BalanceStatistics struct {
	TotalReceived  decimal.Decimal `json:"totalReceived"`
	TotalWithdrawn decimal.Decimal `json:"totalWithdrawn"`
}

// UserProfile represents GET /user
type UserProfile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

// PublicStats is the unauthenticated platform statistics payload.
// Fetching it is best-effort.
type PublicStats struct {
	TotalUsers        int64           `json:"totalUsers"`
	TotalTransactions int64           `json:"totalTransactions"`
	TotalVolume       decimal.Decimal `json:"totalVolume"`
}
