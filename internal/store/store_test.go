package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()

	t.Run("get returns ErrNotFound for unknown project", func(t *testing.T) {
		s := openTestStore(t)

		_, err := s.GetSnapshot(ctx, "proj-missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("round-trips a snapshot", func(t *testing.T) {
		s := openTestStore(t)

		snap := Snapshot{
			ProjectID:   "proj-1",
			Status:      statuschannel.StatusProcessing,
			Progress:    42.5,
			CurrentStep: "scoring",
			StepDetails: map[string]any{"segment": float64(3)},
			UpdatedAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.UpsertSnapshot(ctx, snap))

		got, err := s.GetSnapshot(ctx, "proj-1")
		require.NoError(t, err)
		assert.Equal(t, snap.Status, got.Status)
		assert.Equal(t, snap.Progress, got.Progress)
		assert.Equal(t, snap.CurrentStep, got.CurrentStep)
		assert.Equal(t, snap.StepDetails, got.StepDetails)
		assert.Equal(t, snap.UpdatedAt, got.UpdatedAt)
	})

	t.Run("upsert replaces the previous snapshot", func(t *testing.T) {
		s := openTestStore(t)

		require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{
			ProjectID: "proj-1",
			Status:    statuschannel.StatusQueued,
		}))
		require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{
			ProjectID: "proj-1",
			Status:    statuschannel.StatusCompleted,
			Progress:  100,
		}))

		got, err := s.GetSnapshot(ctx, "proj-1")
		require.NoError(t, err)
		assert.Equal(t, statuschannel.StatusCompleted, got.Status)
		assert.Equal(t, float64(100), got.Progress)

		snapshots, err := s.ListSnapshots(ctx)
		require.NoError(t, err)
		assert.Len(t, snapshots, 1)
	})

	t.Run("rejects a snapshot without a project id", func(t *testing.T) {
		s := openTestStore(t)
		assert.Error(t, s.UpsertSnapshot(ctx, Snapshot{Status: statuschannel.StatusQueued}))
	})

	t.Run("lists snapshots ordered by project id", func(t *testing.T) {
		s := openTestStore(t)

		for _, id := range []string{"proj-b", "proj-a", "proj-c"} {
			require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{ProjectID: id, Status: statuschannel.StatusQueued}))
		}

		snapshots, err := s.ListSnapshots(ctx)
		require.NoError(t, err)
		require.Len(t, snapshots, 3)
		assert.Equal(t, "proj-a", snapshots[0].ProjectID)
		assert.Equal(t, "proj-c", snapshots[2].ProjectID)
	})

	t.Run("delete removes a snapshot", func(t *testing.T) {
		s := openTestStore(t)

		require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{ProjectID: "proj-1", Status: statuschannel.StatusQueued}))
		require.NoError(t, s.DeleteSnapshot(ctx, "proj-1"))

		_, err := s.GetSnapshot(ctx, "proj-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("persists the backend error without losing status", func(t *testing.T) {
		s := openTestStore(t)

		require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{
			ProjectID: "proj-1",
			Status:    statuschannel.StatusProcessing,
			Progress:  60,
			LastError: "gpu pool exhausted",
		}))

		got, err := s.GetSnapshot(ctx, "proj-1")
		require.NoError(t, err)
		assert.Equal(t, statuschannel.StatusProcessing, got.Status)
		assert.Equal(t, "gpu pool exhausted", got.LastError)
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertSnapshot(ctx, Snapshot{ProjectID: "proj-1", Status: statuschannel.StatusProcessing}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetSnapshot(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, statuschannel.StatusProcessing, got.Status)
}
