package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreAppendAndRecent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	for i, outcome := range []string{"published", "skipped_no_change", "push_failed"} {
		rec := Record{
			RunID:      string(rune('a'+i)) + "-run",
			Trigger:    "schedule",
			Outcome:    outcome,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}
		require.NoError(t, store.Append(ctx, rec))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	// Newest first.
	require.Equal(t, "push_failed", recent[0].Outcome)
	require.Equal(t, "skipped_no_change", recent[1].Outcome)
}

func TestStoreRoundTripFields(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	rec := Record{
		RunID:      "run-1",
		Trigger:    "manual",
		Outcome:    "push_failed",
		CommitHash: "deadbeef",
		Warning:    "push rejected: remote ahead",
		StartedAt:  time.Now().Truncate(time.Second),
		FinishedAt: time.Now().Truncate(time.Second),
	}
	require.NoError(t, store.Append(ctx, rec))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	got := recent[0]
	require.Equal(t, rec.RunID, got.RunID)
	require.Equal(t, rec.Trigger, got.Trigger)
	require.Equal(t, rec.CommitHash, got.CommitHash)
	require.Equal(t, rec.Warning, got.Warning)
	require.Equal(t, rec.StartedAt.Unix(), got.StartedAt.Unix())
}

func TestStoreDuplicateRunIDRejected(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	rec := Record{RunID: "run-1", Trigger: "manual", Outcome: "published", StartedAt: time.Now(), FinishedAt: time.Now()}
	require.NoError(t, store.Append(ctx, rec))
	require.Error(t, store.Append(ctx, rec))
}

func TestRecentDefaultLimit(t *testing.T) {
	store, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	recent, err := store.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, recent)
}
