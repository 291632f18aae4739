package ports

import (
	"context"
	"testing"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunCheckpointStoreContract runs a suite of tests to verify that a CheckpointStore
// implementation adheres to the defined interface contract.
func RunCheckpointStoreContract(t *testing.T, store CheckpointStore) {
	ctx := context.Background()
	runID := "contract-run-" + time.Now().Format("20060102150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		cp := domain.NewCheckpoint(runID, "review", domain.NewState(map[string]any{
			"topic":    "bar",
			"count":    42,
			"messages": []any{"a", "b"},
		}))
		cp.Status = domain.StatusAwaitingInput
		cp.Step = 3

		require.NoError(t, store.Save(ctx, runID, cp), "Save should not return error")

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "review", loaded.Pending)
		assert.Equal(t, domain.StatusAwaitingInput, loaded.Status)
		assert.Equal(t, 3, loaded.Step)

		topic, _ := loaded.State.Get("topic")
		assert.Equal(t, "bar", topic)
		assert.Equal(t, []any{"a", "b"}, loaded.State.Sequence("messages"))
		// JSON persistence may turn ints into float64.
		count, ok := loaded.State.Get("count")
		assert.True(t, ok)
		assert.EqualValues(t, 42, count)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		cp := domain.NewCheckpoint(runID, "next", domain.NewState(nil))
		require.NoError(t, store.Save(ctx, runID, cp))

		loaded, err := store.Load(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "next", loaded.Pending)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+runID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, runID, domain.NewCheckpoint(runID, "start", domain.NewState(nil))))

		require.NoError(t, store.Delete(ctx, runID), "Delete should not return error")

		_, err := store.Load(ctx, runID)
		assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "Load after Delete should return ErrCheckpointNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := runID + "-1"
		id2 := runID + "-2"
		_ = store.Save(ctx, id1, domain.NewCheckpoint(id1, "start", domain.NewState(nil)))
		_ = store.Save(ctx, id2, domain.NewCheckpoint(id2, "start", domain.NewState(nil)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		runs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, runs, id1)
		assert.Contains(t, runs, id2)
	})
}
