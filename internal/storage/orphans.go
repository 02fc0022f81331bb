package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// OrphanJournalKey is the fixed key holding the orphan journal
const OrphanJournalKey = "walletsync:push-orphans"

// OrphanEntry records a push endpoint torn down on the platform whose backend
// registration could not be deleted
type OrphanEntry struct {
	Endpoint   string    `json:"endpoint"`
	RecordedAt time.Time `json:"recordedAt"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
}

// OrphanJournal is a small endpoint-keyed list persisted as one JSON record.
// Writes are serialized within the process only.
type OrphanJournal struct {
	kv  KeyValueStore
	now func() time.Time
	mu  sync.Mutex
}

// NewOrphanJournal creates a journal over kv
func NewOrphanJournal(kv KeyValueStore) *OrphanJournal {
	return &OrphanJournal{kv: kv, now: time.Now}
}

// Record adds endpoint or bumps its attempt counter
func (j *OrphanJournal) Record(ctx context.Context, endpoint string, cause error) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return err
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	found := false
	for i := range entries {
		if entries[i].Endpoint == endpoint {
			entries[i].Attempts++
			entries[i].LastError = msg
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, OrphanEntry{
			Endpoint:   endpoint,
			RecordedAt: j.now().UTC(),
			Attempts:   1,
			LastError:  msg,
		})
	}

	return j.save(ctx, entries)
}

// Remove drops endpoint from the journal; removing an unknown endpoint is a no-op
func (j *OrphanJournal) Remove(ctx context.Context, endpoint string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Endpoint != endpoint {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return j.save(ctx, kept)
}

// List returns the journal ordered by recording time
func (j *OrphanJournal) List(ctx context.Context) ([]OrphanEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].RecordedAt.Before(entries[b].RecordedAt)
	})
	return entries, nil
}

func (j *OrphanJournal) load(ctx context.Context) ([]OrphanEntry, error) {
	data, err := j.kv.Get(ctx, OrphanJournalKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []OrphanEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("corrupt orphan journal: %w", err)
	}
	return entries, nil
}

func (j *OrphanJournal) save(ctx context.Context, entries []OrphanEntry) error {
	if len(entries) == 0 {
		return j.kv.Delete(ctx, OrphanJournalKey)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode orphan journal: %w", err)
	}
	return j.kv.Set(ctx, OrphanJournalKey, data)
}
