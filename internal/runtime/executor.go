package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// execute invokes a work node, firing lifecycle hooks and recovering panics.
func (e *Engine) execute(ctx context.Context, node *graph.Node, state domain.State, depth int) (out domain.Output, err error) {
	ctx, done := e.enter(ctx, node, depth)
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("node %q panicked: %v", node.Name, r)
		}
		done(err)
	}()
	return node.Fn(ctx, state)
}

// executeHuman invokes a human node's handler with one line of input.
func (e *Engine) executeHuman(ctx context.Context, node *graph.Node, state domain.State, input string) (cmd domain.Command, err error) {
	ctx, done := e.enter(ctx, node, 0)
	defer func() {
		if r := recover(); r != nil {
			cmd, err = domain.Command{}, fmt.Errorf("node %q panicked: %v", node.Name, r)
		}
		done(err)
	}()
	return node.Human(ctx, state, input)
}

func (e *Engine) enter(ctx context.Context, node *graph.Node, depth int) (context.Context, func(error)) {
	info, _ := domain.RunInfoFrom(ctx)
	info.Node = node.Name
	info.Depth = depth
	ctx = domain.WithRunInfo(ctx, info)
	ctx = domain.WithHooks(ctx, e.hooks)
	ctx = domain.WithClock(ctx, e.now)

	start := e.now()
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, e.nodeEvent(domain.EventNodeEnter, info, node, start))
	}
	return ctx, func(err error) {
		if e.hooks.OnNodeLeave == nil {
			return
		}
		ev := e.nodeEvent(domain.EventNodeLeave, info, node, e.now())
		ev.Duration = ev.Timestamp.Sub(start)
		ev.Err = err
		e.hooks.OnNodeLeave(ctx, ev)
	}
}

func (e *Engine) nodeEvent(typ domain.EventType, info domain.RunInfo, node *graph.Node, at time.Time) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: at, Type: typ, RunID: info.RunID},
		Node:      node.Name,
		Kind:      string(node.Kind),
		Depth:     info.Depth,
	}
}
