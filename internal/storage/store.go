// Package storage provides the local persistence port used for notification
// preferences and the push orphan journal, with memory, Redis and SQLite
// backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/wallet-sync/internal/config"
)

// ErrNotFound is returned by Get when a key has no value
var ErrNotFound = errors.New("storage: key not found")

// KeyValueStore is the minimal persistence port. Values are opaque bytes.
// Concurrent writers to the same key race and the last write wins.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the backend selected by cfg.Backend
func Open(ctx context.Context, cfg config.StoreConfig) (KeyValueStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, &cfg.Redis)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
