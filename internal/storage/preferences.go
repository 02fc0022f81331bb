package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wallet-sync/internal/models"
)

// PreferencesKey is the fixed key holding NotificationPreferences
const PreferencesKey = "walletsync:notification-preferences"

// PreferenceStore persists the full NotificationPreferences object as JSON.
// Every save rewrites the whole record.
type PreferenceStore struct {
	kv KeyValueStore
}

// NewPreferenceStore creates a preference store over kv
func NewPreferenceStore(kv KeyValueStore) *PreferenceStore {
	return &PreferenceStore{kv: kv}
}

// Load returns the stored preferences, or the defaults when nothing is stored.
// Fields missing from the stored record keep their default values. A corrupt
// record yields the defaults together with an error.
func (p *PreferenceStore) Load(ctx context.Context) (models.NotificationPreferences, error) {
	prefs := models.DefaultNotificationPreferences()

	data, err := p.kv.Get(ctx, PreferencesKey)
	if errors.Is(err, ErrNotFound) {
		return prefs, nil
	}
	if err != nil {
		return prefs, err
	}

	if err := json.Unmarshal(data, &prefs); err != nil {
		return models.DefaultNotificationPreferences(), fmt.Errorf("corrupt preference record: %w", err)
	}
	return prefs, nil
}

// Save writes the full preference object
func (p *PreferenceStore) Save(ctx context.Context, prefs models.NotificationPreferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	return p.kv.Set(ctx, PreferencesKey, data)
}

// Clear removes the stored record so the next Load returns defaults
func (p *PreferenceStore) Clear(ctx context.Context) error {
	return p.kv.Delete(ctx, PreferencesKey)
}
