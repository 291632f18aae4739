package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// ExecutionStatus defines where a run stands.
type ExecutionStatus string

const (
	StatusActive        ExecutionStatus = "active"         // Pending node is ready to execute
	StatusAwaitingInput ExecutionStatus = "awaiting_input" // Pending node is a human-input node
	StatusTerminated    ExecutionStatus = "terminated"     // End reached
)

// Checkpoint is the persisted snapshot of a run.
// Pending is the node executed next (or End once terminated).
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Pending   string          `json:"pending"`
	Status    ExecutionStatus `json:"status"`
	Step      int             `json:"step"`
	State     State           `json:"state"`
	History   []string        `json:"history,omitempty"`
	Digest    string          `json:"digest,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewCheckpoint creates the checkpoint of a fresh run positioned at entry.
func NewCheckpoint(runID, entry string, state State) *Checkpoint {
	return &Checkpoint{
		RunID:   runID,
		Pending: entry,
		Status:  StatusActive,
		State:   state,
	}
}

// Clone returns a copy that shares no maps or slices with c.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.State = NewState(c.State.values)
	out.History = append([]string(nil), c.History...)
	return &out
}

// Seal computes the content digest. Stores call it before writing.
func (c *Checkpoint) Seal() error {
	d, err := c.digest()
	if err != nil {
		return err
	}
	c.Digest = d
	return nil
}

// Verify checks the content digest. Checkpoints without a digest are accepted.
func (c *Checkpoint) Verify() error {
	if c.Digest == "" {
		return nil
	}
	d, err := c.digest()
	if err != nil {
		return err
	}
	if d != c.Digest {
		return fmt.Errorf("%w: run %s", ErrCheckpointCorrupt, c.RunID)
	}
	return nil
}

func (c *Checkpoint) digest() (string, error) {
	// Struct values encode in field order while decoded maps encode sorted,
	// so the state is normalized through a generic round trip first.
	raw, err := json.Marshal(c.State)
	if err != nil {
		return "", fmt.Errorf("failed to encode checkpoint state: %w", err)
	}
	var canonical any
	if err := json.Unmarshal(raw, &canonical); err != nil {
		return "", fmt.Errorf("failed to normalize checkpoint state: %w", err)
	}
	payload, err := json.Marshal(struct {
		RunID   string          `json:"run_id"`
		Pending string          `json:"pending"`
		Status  ExecutionStatus `json:"status"`
		Step    int             `json:"step"`
		State   any             `json:"state"`
	}{c.RunID, c.Pending, c.Status, c.Step, canonical})
	if err != nil {
		return "", fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	sum := blake3.Sum256(payload)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}

// Outcome is what the engine reports back to its caller after driving a run.
type Outcome struct {
	RunID   string
	Status  ExecutionStatus
	Pending string
	Step    int
	State   State
}

// Done reports whether the run reached End.
func (o *Outcome) Done() bool {
	return o != nil && o.Status == StatusTerminated
}
