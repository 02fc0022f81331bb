package models

// NotificationPreferences is the user's notification opt-in state.
// Enabled should only be true while a live push subscription exists.
type NotificationPreferences struct {
	Enabled           bool `json:"enabled"`
	PaymentReceived   bool `json:"paymentReceived"`
	WithdrawCompleted bool `json:"withdrawCompleted"`
}

// DefaultNotificationPreferences returns the preferences used when nothing is stored
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		Enabled:           false,
		PaymentReceived:   true,
		WithdrawCompleted: true,
	}
}

// PushSubscription is the serialized form of a platform push subscription
type PushSubscription struct {
	Endpoint       string               `json:"endpoint"`
	ExpirationTime *int64               `json:"expirationTime,omitempty"`
	Keys           PushSubscriptionKeys `json:"keys"`
}

// PushSubscriptionKeys holds the client encryption keys
type PushSubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// PushStatus is the response of GET /push/status
type PushStatus struct {
	HasSubscriptions bool `json:"hasSubscriptions"`
	Count            int  `json:"count"`
}

// VAPIDKeyResponse is the response of GET /push/vapid-key
type VAPIDKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// NotificationOptions mirrors the options accepted by a platform notification
// call and carried in push payloads
type NotificationOptions struct {
	Body               string                 `json:"body,omitempty"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	RequireInteraction bool                   `json:"requireInteraction,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Actions            []NotificationAction   `json:"actions,omitempty"`
}

// NotificationAction is an action button on a notification
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// URL returns data.url when it is a string
func (o NotificationOptions) URL() string {
	if o.Data == nil {
		return ""
	}
	u, _ := o.Data["url"].(string)
	return u
}
