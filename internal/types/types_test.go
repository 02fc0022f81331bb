package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status PaymentStatus
		want   bool
	}{
		{PaymentPending, false},
		{PaymentProcessing, false},
		{PaymentCompleted, true},
		{PaymentPaid, true},
		{PaymentFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
			assert.True(t, tt.status.Valid())
		})
	}

	assert.False(t, PaymentStatus("EXPIRED").Valid())
}

func TestWithdrawStatus_IsTerminal(t *testing.T) {
	assert.True(t, WithdrawCompleted.IsTerminal())
	assert.True(t, WithdrawFailed.IsTerminal())
	assert.False(t, WithdrawPending.IsTerminal())
	assert.False(t, WithdrawProcessing.IsTerminal())
}

func TestParseVisibility(t *testing.T) {
	tests := []struct {
		in     string
		want   Visibility
		wantOK bool
	}{
		{"foreground", VisibilityForeground, true},
		{"visible", VisibilityForeground, true},
		{" Hidden ", VisibilityBackground, true},
		{"background", VisibilityBackground, true},
		{"prerender", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseVisibility(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
