// ABOUTME: Tests for the SQLite run-history store.
// ABOUTME: Covers inserts, ordering, limits, lookup misses, and id fill-in.

package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		Model:         "gpt-5.1-codex",
		Cwd:           "/tmp/project",
		Prompt:        "User:\nhi\n\nAssistant:",
		Content:       "hello",
		Status:        StatusOK,
		DurationMS:    1234,
		EventCount:    3,
		ToolCallCount: 1,
	}
	require.NoError(t, store.Record(ctx, run))
	require.NotEmpty(t, run.ID, "Record must assign an id")
	require.False(t, run.CreatedAt.IsZero(), "Record must assign a timestamp")

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, "gpt-5.1-codex", got.Model)
	require.Equal(t, "hello", got.Content)
	require.Equal(t, StatusOK, got.Status)
	require.Equal(t, int64(1234), got.DurationMS)
	require.Equal(t, 3, got.EventCount)
	require.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestRecordFailureRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &Run{
		Prompt:   "User:\nbreak\n\nAssistant:",
		Status:   StatusError,
		Error:    "model not found",
		ExitCode: 3,
	}
	require.NoError(t, store.Record(ctx, run))

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusError, got.Status)
	require.Equal(t, "model not found", got.Error)
	require.Equal(t, 3, got.ExitCode)
	require.Empty(t, got.Content)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		run := &Run{
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Prompt:    "p",
			Content:   string(rune('a' + i)),
			Status:    StatusOK,
		}
		require.NoError(t, store.Record(ctx, run))
	}

	runs, err := store.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "e", runs[0].Content)
	require.Equal(t, "d", runs[1].Content)
	require.Equal(t, "c", runs[2].Content)
}

func TestRecentEmptyStore(t *testing.T) {
	store := newTestStore(t)

	runs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, runs)
	require.Empty(t, runs)
}

func TestGetMissingRun(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-id")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "nested", "deep", "history.db")

	store, err := Open(path, logger)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Record(context.Background(), &Run{Prompt: "p", Status: StatusTimeout}))

	runs, err := store.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, StatusTimeout, runs[0].Status)
}
