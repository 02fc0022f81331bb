// Package serviceworker implements the platform-facing side of push delivery:
// control messages, push payload decoding and notification-click routing.
package serviceworker

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/notification"
)

const (
	// DefaultTitle is used when a push payload carries no title
	DefaultTitle = "Wallet"
	// DefaultBody is used when a push payload carries no body
	DefaultBody = "You have a new notification"
	// DefaultTag groups notifications without their own tag
	DefaultTag = "wallet-notification"
	// DefaultURL is opened when a notification carries no data.url
	DefaultURL = "/"
)

// MessageType identifies a control message posted to the service worker
type MessageType string

const (
	// MessageSkipWaiting asks a waiting worker to activate immediately
	MessageSkipWaiting MessageType = "SKIP_WAITING"
)

type controlMessage struct {
	Type MessageType `json:"type"`
}

// ParseControlMessage returns the type of a known control message
func ParseControlMessage(data []byte) (MessageType, bool) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return "", false
	}
	switch msg.Type {
	case MessageSkipWaiting:
		return msg.Type, true
	}
	return "", false
}

// PushNotification is a decoded push event ready to be shown
type PushNotification struct {
	Title   string
	Options models.NotificationOptions
}

type pushPayload struct {
	Title              string                      `json:"title"`
	Body               string                      `json:"body"`
	Tag                string                      `json:"tag"`
	Icon               string                      `json:"icon"`
	Badge              string                      `json:"badge"`
	RequireInteraction bool                        `json:"requireInteraction"`
	Data               map[string]interface{}      `json:"data"`
	Actions            []models.NotificationAction `json:"actions"`
}

// ParsePushPayload decodes a push event payload, filling defaults. A payload
// that is not a JSON object is shown as the body text.
func ParsePushPayload(data []byte) PushNotification {
	var p pushPayload
	trimmed := strings.TrimSpace(string(data))
	if trimmed != "" && json.Unmarshal(data, &p) != nil {
		p = pushPayload{Body: trimmed}
	}

	n := PushNotification{
		Title: p.Title,
		Options: models.NotificationOptions{
			Body:               p.Body,
			Icon:               p.Icon,
			Badge:              p.Badge,
			Tag:                p.Tag,
			RequireInteraction: p.RequireInteraction,
			Data:               p.Data,
			Actions:            p.Actions,
		},
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}
	if n.Options.Body == "" {
		n.Options.Body = DefaultBody
	}
	if n.Options.Icon == "" {
		n.Options.Icon = notification.DefaultIcon
	}
	if n.Options.Badge == "" {
		n.Options.Badge = notification.DefaultBadge
	}
	if n.Options.Tag == "" {
		n.Options.Tag = DefaultTag
	}
	if n.Options.Data == nil {
		n.Options.Data = map[string]interface{}{}
	}
	if n.Options.URL() == "" {
		n.Options.Data["url"] = DefaultURL
	}
	return n
}

// ClientWindow is an open client window controlled by the worker
type ClientWindow struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Focused bool   `json:"focused,omitempty"`
}

// ClickAction is what the worker does in response to a notification click
type ClickAction string

const (
	// ClickNone closes the notification only
	ClickNone ClickAction = "none"
	// ClickFocus focuses an existing window
	ClickFocus ClickAction = "focus"
	// ClickOpen opens a new window
	ClickOpen ClickAction = "open"
)

// ClickResult is the outcome of ResolveClick
type ClickResult struct {
	Action   ClickAction `json:"action"`
	WindowID string      `json:"windowId,omitempty"`
	URL      string      `json:"url,omitempty"`
}

// ResolveClick decides how to handle a click on a notification. The "close"
// and "dismiss" action buttons only close it. Otherwise an open window
// already showing data.url is focused, or a new one is opened.
func ResolveClick(windows []ClientWindow, action string, opts models.NotificationOptions) ClickResult {
	if action == "close" || action == "dismiss" {
		return ClickResult{Action: ClickNone}
	}

	target := opts.URL()
	if target == "" {
		target = DefaultURL
	}

	for _, w := range windows {
		if sameDestination(w.URL, target) {
			return ClickResult{Action: ClickFocus, WindowID: w.ID, URL: w.URL}
		}
	}
	return ClickResult{Action: ClickOpen, URL: target}
}

// sameDestination compares paths, and queries when the target has one.
// Absolute targets must also match scheme and host.
func sameDestination(windowURL, target string) bool {
	w, err := url.Parse(windowURL)
	if err != nil {
		return false
	}
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	if t.IsAbs() && (t.Scheme != w.Scheme || t.Host != w.Host) {
		return false
	}
	if cleanPath(w.Path) != cleanPath(t.Path) {
		return false
	}
	return t.RawQuery == "" || t.RawQuery == w.RawQuery
}

func cleanPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	return p
}
