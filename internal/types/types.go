// Package types provides common type definitions for the wallet sync client.
package types

import "strings"

// PaymentStatus represents the lifecycle status of an incoming payment
type PaymentStatus string

const (
	// PaymentPending represents a payment created but not yet paid
	PaymentPending PaymentStatus = "PENDING"
	// PaymentProcessing represents a payment being settled by the backend
	PaymentProcessing PaymentStatus = "PROCESSING"
	// PaymentCompleted represents a settled payment
	PaymentCompleted PaymentStatus = "COMPLETED"
	// PaymentPaid represents a payment confirmed as paid by the payer
	PaymentPaid PaymentStatus = "PAID"
	// PaymentFailed represents a payment the backend gave up on
	PaymentFailed PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is expected.
// Only COMPLETED and PAID end a payment watch.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentPaid
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// WithdrawStatus represents the lifecycle status of a withdrawal
type WithdrawStatus string

const (
	// WithdrawPending represents a requested withdrawal
	WithdrawPending WithdrawStatus = "PENDING"
	// WithdrawProcessing represents a withdrawal in transit
	WithdrawProcessing WithdrawStatus = "PROCESSING"
	// WithdrawCompleted represents a delivered withdrawal
	WithdrawCompleted WithdrawStatus = "COMPLETED"
	// WithdrawFailed represents a rejected withdrawal
	WithdrawFailed WithdrawStatus = "FAILED"
)

// IsTerminal reports whether the withdrawal reached COMPLETED or FAILED
func (s WithdrawStatus) IsTerminal() bool {
	return s == WithdrawCompleted || s == WithdrawFailed
}

// Visibility represents whether the client view is in front of the user
type Visibility string

const (
	// VisibilityForeground means the view is visible
	VisibilityForeground Visibility = "foreground"
	// VisibilityBackground means the view is hidden
	VisibilityBackground Visibility = "background"
)

// ParseVisibility parses "foreground"/"visible" and "background"/"hidden"
func ParseVisibility(s string) (Visibility, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "foreground", "visible":
		return VisibilityForeground, true
	case "background", "hidden":
		return VisibilityBackground, true
	}
	return "", false
}

// Permission mirrors the platform notification permission state
type Permission string

const (
	// PermissionDefault means the user has not answered the prompt yet
	PermissionDefault Permission = "default"
	// PermissionGranted means notifications may be shown
	PermissionGranted Permission = "granted"
	// PermissionDenied means the user declined
	PermissionDenied Permission = "denied"
)

// DeviceType is the coarse device classification sent with push registrations
type DeviceType string

const (
	// DeviceMobile represents phones and tablets
	DeviceMobile DeviceType = "mobile"
	// DeviceDesktop represents everything else
	DeviceDesktop DeviceType = "desktop"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
