package ports

import (
	"context"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// CheckpointStore defines the interface for persisting run checkpoints.
// Reads and writes are whole-snapshot; there are no partial updates.
type CheckpointStore interface {
	// Save persists the checkpoint for a given run ID, overwriting any previous one.
	Save(ctx context.Context, runID string, cp *domain.Checkpoint) error

	// Load retrieves the checkpoint for a given run ID.
	// Returns domain.ErrCheckpointNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)

	// Delete removes the checkpoint for a given run ID.
	Delete(ctx context.Context, runID string) error

	// List returns the IDs of all stored runs.
	List(ctx context.Context) ([]string, error)
}
