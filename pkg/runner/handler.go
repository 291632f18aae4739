package runner

import (
	"context"
)

// Prompt is what a human node asks of the external actor.
type Prompt struct {
	RunID    string `json:"run_id"`
	Node     string `json:"node"`
	Content  string `json:"content,omitempty"`
	Question string `json:"prompt,omitempty"`
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Output presents a pending review to the user.
	Output(ctx context.Context, p Prompt) error

	// Input reads one response from the user.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (status updates, completion notices).
	SystemOutput(ctx context.Context, msg string) error
}
