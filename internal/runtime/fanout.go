package runtime

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// childResult is one arena slot, indexed by send position.
type childResult struct {
	update domain.Update
	err    error
}

// fanOut runs one isolated child per send and merges their outputs into parent
// in completion order once every child has finished.
func (e *Engine) fanOut(ctx context.Context, g *graph.Graph, source string, parent domain.State, sends []domain.Send, depth int) (domain.State, error) {
	targets := make([]*graph.Node, len(sends))
	names := make([]string, len(sends))
	for i, s := range sends {
		n, ok := g.Node(s.Node)
		if !ok {
			return parent, domain.Errorf(domain.KindGraphConfig, "fan-out", "node %q sent to undefined node %q", source, s.Node)
		}
		if n.Kind == graph.KindHuman {
			return parent, domain.Errorf(domain.KindGraphConfig, "fan-out", "node %q cannot send to human node %q", source, s.Node)
		}
		targets[i] = n
		names[i] = n.Name
	}

	info, _ := domain.RunInfoFrom(ctx)
	log := e.logger.With("run_id", info.RunID, "node", source)
	e.emitFan(ctx, e.hooks.OnFanOut, domain.EventFanOut, info.RunID, source, names, 0)
	log.Info("fan-out dispatched", "children", len(sends))

	results := make([]childResult, len(sends))
	var (
		mu    sync.Mutex
		order = make([]int, 0, len(sends))
	)

	// A plain group: one failing child must not cancel its siblings.
	var grp errgroup.Group
	grp.SetLimit(e.maxConcurrency)
	for i := range sends {
		grp.Go(func() error {
			update, err := e.runChild(ctx, targets[i], parent, sends[i], depth, i)
			results[i] = childResult{update: update, err: err}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	_ = grp.Wait()

	if err := ctx.Err(); err != nil {
		return parent, abortErr(err)
	}

	merged := parent
	failures := 0
	for _, i := range order {
		res := results[i]
		update := res.update
		if res.err != nil {
			if errors.Is(res.err, domain.ErrGraphConfig) {
				return parent, res.err
			}
			failures++
			log.Warn("child failed", "child", i, "target", names[i], "err", res.err)
			update = domain.Update{}
			if field := targets[i].ErrorField; field != "" {
				update[field] = domain.Tag(res.err)
			}
		}
		var err error
		merged, err = e.registry.Merge(g.Schema(), merged, update)
		if err != nil {
			return parent, err
		}
	}

	e.emitFan(ctx, e.hooks.OnFanIn, domain.EventFanIn, info.RunID, source, names, failures)
	log.Info("fan-in joined", "children", len(order), "failures", failures)
	return merged, nil
}

// runChild executes one fan-out child against a private copy of the parent state.
func (e *Engine) runChild(ctx context.Context, node *graph.Node, parent domain.State, send domain.Send, depth, index int) (domain.Update, error) {
	ctx = domain.WithRunInfo(ctx, childInfo(ctx, depth+1))
	e.logger.Debug("child started", "node", node.Name, "child", index)

	switch node.Kind {
	case graph.KindSubgraph:
		return e.runSubgraph(ctx, node, parent, send, depth+1)
	case graph.KindWork:
		seed := override(parent, send.State)
		out, err := e.execute(ctx, node, seed, depth+1)
		if err != nil {
			return nil, err
		}
		switch o := out.(type) {
		case domain.Update:
			return o, nil
		case domain.Command:
			return o.Update, nil
		case *domain.Command:
			if o != nil {
				return o.Update, nil
			}
		}
		return nil, nil
	}
	return nil, domain.Errorf(domain.KindGraphConfig, "fan-out", "node %q cannot run as a child", node.Name)
}

func (e *Engine) runSubgraph(ctx context.Context, node *graph.Node, parent domain.State, send domain.Send, depth int) (domain.Update, error) {
	sub := node.Subgraph

	// Output fields start empty in every child so that merging them back
	// never duplicates values the parent already holds.
	reset := append([]string(nil), node.Outputs...)
	if node.ErrorField != "" {
		reset = append(reset, node.ErrorField)
	}
	seed := override(parent.Project(sub.Schema()).Without(reset...), send.State)
	state := sub.Schema().Init(seed.Values())

	final, err := e.walk(ctx, sub, state, depth)
	if err != nil {
		return nil, err
	}

	out := domain.Update{}
	for _, f := range node.Outputs {
		if v, ok := final.Get(f); ok {
			out[f] = v
		}
	}
	if node.ErrorField != "" {
		if v, ok := final.Get(node.ErrorField); ok && v != nil && v != "" {
			out[node.ErrorField] = v
		}
	}
	return out, nil
}

// override applies send values with replace semantics.
func override(state domain.State, values domain.Update) domain.State {
	for k, v := range values {
		state = state.With(k, v)
	}
	return state
}

func childInfo(ctx context.Context, depth int) domain.RunInfo {
	info, _ := domain.RunInfoFrom(ctx)
	info.Depth = depth
	return info
}

func (e *Engine) emitFan(ctx context.Context, hook func(context.Context, *domain.FanEvent), typ domain.EventType, runID, source string, targets []string, failures int) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.FanEvent{
		EventBase: domain.EventBase{Timestamp: e.now(), Type: typ, RunID: runID},
		Node:      source,
		Targets:   targets,
		Failures:  failures,
	})
}
