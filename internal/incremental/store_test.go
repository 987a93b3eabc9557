package incremental

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{"memory": NewMemoryStore(), "sqlite": sq}
}

func TestStoreWatermark(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			_, ok, err := s.Watermark(ctx, "images")
			require.NoError(t, err)
			assert.False(t, ok)

			at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
			require.NoError(t, s.Commit(ctx, "images", "run-1", at))
			got, ok, err := s.Watermark(ctx, "images")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, got.Equal(at))

			later := at.Add(time.Minute)
			require.NoError(t, s.Commit(ctx, "images", "run-2", later))
			got, _, err = s.Watermark(ctx, "images")
			require.NoError(t, err)
			assert.True(t, got.Equal(later))

			_, ok, err = s.Watermark(ctx, "styles")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRuns(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			base := time.Now()
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, s.RecordRun(ctx, RunRecord{
					RunID:     id,
					Category:  "pages",
					Started:   base.Add(time.Duration(i) * time.Second),
					Finished:  base.Add(time.Duration(i)*time.Second + time.Millisecond),
					Processed: i + 1,
					Failed:    i % 2,
				}))
			}
			require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "x", Category: "styles"}))

			runs, err := s.Runs(ctx, "pages", 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "c", runs[0].RunID)
			assert.Equal(t, "b", runs[1].RunID)
			assert.False(t, runs[1].Succeeded())
			assert.Equal(t, 3, runs[0].Processed)

			all, err := s.Runs(ctx, "pages", 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestSQLiteStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	at := time.Unix(1700000000, 42)
	require.NoError(t, s.Commit(t.Context(), "images", "r", at))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, ok, err := s.Watermark(t.Context(), "images")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}

func TestSinceFilter(t *testing.T) {
	ctx := t.Context()
	store := NewMemoryStore()
	f := SinceFilter{Store: store, Category: "images"}

	pass, err := f.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, pass(time.Unix(0, 0)), "cold start passes everything")

	start := time.Now()
	require.NoError(t, f.Commit(ctx, "run", start))

	pass, err = f.Begin(ctx)
	require.NoError(t, err)
	assert.False(t, pass(start.Add(-time.Second)))
	assert.False(t, pass(start), "equal to watermark is not newer")
	assert.True(t, pass(start.Add(time.Nanosecond)))
}

func TestLockedErrors(t *testing.T) {
	assert.True(t, locked(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, locked(errors.New("SQLITE_LOCKED: table locked")))
	assert.False(t, locked(errors.New("no such table: runs")))
}

func TestSQLiteCommitWaitsOutForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	holder, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Close() })
	writer, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	// A second process mid-write holds the reserved lock.
	tx, err := holder.db.BeginTx(t.Context(), nil)
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO watermarks (category, run_id, at_ns) VALUES ('styles', 'other', 1)")
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = tx.Commit()
	}()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, writer.Commit(t.Context(), "images", "run-2", at))
	got, ok, err := writer.Watermark(t.Context(), "images")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))
}
