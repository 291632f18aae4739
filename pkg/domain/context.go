package domain

import (
	"context"
	"time"
)

type ctxKey int

const (
	runInfoKey ctxKey = iota
	hooksKey
	clockKey
)

// RunInfo identifies the node currently executing.
type RunInfo struct {
	RunID string
	Node  string
	Depth int
}

// WithRunInfo attaches run identity to ctx.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey, info)
}

// RunInfoFrom returns the run identity attached to ctx, if any.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey).(RunInfo)
	return info, ok
}

// WithHooks attaches lifecycle hooks so node wrappers can emit events.
func WithHooks(ctx context.Context, hooks LifecycleHooks) context.Context {
	return context.WithValue(ctx, hooksKey, hooks)
}

// HooksFrom returns the hooks attached to ctx, or the zero value.
func HooksFrom(ctx context.Context) LifecycleHooks {
	hooks, _ := ctx.Value(hooksKey).(LifecycleHooks)
	return hooks
}

// WithClock attaches the time source of the engine driving ctx.
func WithClock(ctx context.Context, now func() time.Time) context.Context {
	return context.WithValue(ctx, clockKey, now)
}

// Now reads the clock attached to ctx, falling back to time.Now.
func Now(ctx context.Context) time.Time {
	if now, ok := ctx.Value(clockKey).(func() time.Time); ok && now != nil {
		return now()
	}
	return time.Now()
}
