package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrphanJournal_RecordListRemove(t *testing.T) {
	eachBackend(t, func(t *testing.T, kv KeyValueStore) {
		ctx := testContext(t)
		journal := NewOrphanJournal(kv)
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		tick := 0
		journal.now = func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		}

		require.NoError(t, journal.Record(ctx, "https://push.example.com/a", errors.New("502")))
		require.NoError(t, journal.Record(ctx, "https://push.example.com/b", nil))
		require.NoError(t, journal.Record(ctx, "https://push.example.com/a", errors.New("timeout")))

		entries, err := journal.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "https://push.example.com/a", entries[0].Endpoint)
		assert.Equal(t, 2, entries[0].Attempts)
		assert.Equal(t, "timeout", entries[0].LastError)
		assert.Equal(t, 1, entries[1].Attempts)

		require.NoError(t, journal.Remove(ctx, "https://push.example.com/a"))
		require.NoError(t, journal.Remove(ctx, "https://push.example.com/unknown"))

		entries, err = journal.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "https://push.example.com/b", entries[0].Endpoint)

		require.NoError(t, journal.Remove(ctx, "https://push.example.com/b"))
		_, err = kv.Get(ctx, OrphanJournalKey)
		assert.ErrorIs(t, err, ErrNotFound, "empty journal deletes its record")
	})
}

func TestOrphanJournal_RejectsEmptyEndpoint(t *testing.T) {
	assert.Error(t, NewOrphanJournal(NewMemoryStore()).Record(testContext(t), "", nil))
}
