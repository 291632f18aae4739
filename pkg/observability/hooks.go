package observability

import (
	"context"
	"log/slog"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// LoggingHooks logs every lifecycle event. Node enter/leave go to debug,
// retries and failed fan-out children to warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter", "run_id", e.RunID, "node", e.Node, "kind", e.Kind, "depth", e.Depth)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "node_leave", "run_id", e.RunID, "node", e.Node, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "node_leave", "run_id", e.RunID, "node", e.Node, "duration", e.Duration)
		},
		OnRetry: func(ctx context.Context, e *domain.RetryEvent) {
			logger.WarnContext(ctx, "retry", "run_id", e.RunID, "node", e.Node, "attempt", e.Attempt, "delay", e.Delay, "err", e.Err)
		},
		OnFanOut: func(ctx context.Context, e *domain.FanEvent) {
			logger.InfoContext(ctx, "fan_out", "run_id", e.RunID, "node", e.Node, "children", len(e.Targets))
		},
		OnFanIn: func(ctx context.Context, e *domain.FanEvent) {
			level := slog.LevelInfo
			if e.Failures > 0 {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "fan_in", "run_id", e.RunID, "node", e.Node, "children", len(e.Targets), "failures", e.Failures)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.DebugContext(ctx, "checkpoint", "run_id", e.RunID, "pending", e.Pending, "status", e.Status, "step", e.Step)
		},
	}
}

// Combine fans each event out to every non-nil callback, in argument order.
func Combine(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnRetry = chain(out.OnRetry, h.OnRetry)
		out.OnFanOut = chain(out.OnFanOut, h.OnFanOut)
		out.OnFanIn = chain(out.OnFanIn, h.OnFanIn)
		out.OnCheckpoint = chain(out.OnCheckpoint, h.OnCheckpoint)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
