package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rebeliceyang/lazyvar/internal/db/connection"
	"github.com/rebeliceyang/lazyvar/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(connection.Execution{
		Schema:    models.SchemaMain,
		SQL:       "SELECT COUNT(*) FROM exome_hg38_sample_annotations",
		Owner:     "refresh",
		StartedAt: start,
		Duration:  250 * time.Millisecond,
		Rows:      1,
		Outcome:   connection.Completed,
	}))
	require.NoError(t, s.Record(connection.Execution{
		Schema:    models.SchemaMain,
		SQL:       "SELECT variant_sample_id FROM exome_hg38_sample_annotations",
		StartedAt: start.Add(time.Second),
		Outcome:   connection.Cancelled,
		Err:       context.Canceled,
	}))

	entries, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "cancelled", entries[0].Outcome)
	assert.True(t, entries[0].Failed())
	assert.Equal(t, context.Canceled.Error(), entries[0].Error)

	first := entries[1]
	assert.Equal(t, models.SchemaMain, first.Schema)
	assert.Equal(t, "refresh", first.Owner)
	assert.Equal(t, 250*time.Millisecond, first.Duration)
	assert.Equal(t, int64(1), first.Rows)
	assert.True(t, first.StartedAt.Equal(start))
	assert.False(t, first.Failed())

	limited, err := s.Recent(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	for i, sql := range []string{"SELECT COUNT(*) FROM a", "SELECT DISTINCT sample FROM b", "SELECT COUNT(*) FROM c"} {
		require.NoError(t, s.Record(connection.Execution{
			Schema:    models.SchemaMain,
			SQL:       sql,
			StartedAt: time.Unix(int64(i), 0),
			Outcome:   connection.Completed,
		}))
	}

	entries, err := s.Search("COUNT", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT COUNT(*) FROM c", entries[0].SQL)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	for _, at := range []time.Time{now.Add(-48 * time.Hour), now} {
		require.NoError(t, s.Record(connection.Execution{
			Schema:    models.SchemaUsers,
			SQL:       "SELECT value FROM user_value_lists",
			StartedAt: at,
			Outcome:   connection.Completed,
			Err:       errors.New("boom"),
		}))
	}

	n, err := s.Prune(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entries, err := s.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
