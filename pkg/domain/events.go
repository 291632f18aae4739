package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventRetry      EventType = "retry"
	EventFanOut     EventType = "fan_out"
	EventFanIn      EventType = "fan_in"
	EventCheckpoint EventType = "checkpoint"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	Node     string        `json:"node"`
	Kind     string        `json:"kind"`
	Depth    int           `json:"depth"` // 0 for the parent graph, 1 inside a fan-out child
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// RetryEvent is emitted before a retryable node sleeps and tries again.
type RetryEvent struct {
	EventBase
	Node    string        `json:"node"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
	Err     error         `json:"-"`
}

// FanEvent covers both the dispatch and the join of a fan-out.
type FanEvent struct {
	EventBase
	Node     string   `json:"node"`
	Targets  []string `json:"targets"`
	Failures int      `json:"failures,omitempty"`
}

// CheckpointEvent is emitted after a checkpoint was persisted.
type CheckpointEvent struct {
	EventBase
	Pending string          `json:"pending"`
	Status  ExecutionStatus `json:"status"`
	Step    int             `json:"step"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks may be invoked concurrently from fan-out children.
type LifecycleHooks struct {
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnRetry      func(context.Context, *RetryEvent)
	OnFanOut     func(context.Context, *FanEvent)
	OnFanIn      func(context.Context, *FanEvent)
	OnCheckpoint func(context.Context, *CheckpointEvent)
}
