package runtime

import (
	"context"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// step executes one node of g and resolves where control goes next.
// The returned state already contains the node's update (and any fan-out results).
func (e *Engine) step(ctx context.Context, g *graph.Graph, node *graph.Node, state domain.State, depth int) (string, domain.State, error) {
	switch node.Kind {
	case graph.KindWork:
		out, err := e.execute(ctx, node, state, depth)
		if err != nil {
			return "", state, err
		}
		return e.route(ctx, g, node, state, out, depth)

	case graph.KindSubgraph:
		// Reached by a plain edge or goto: run it as a fan-out of one.
		merged, err := e.fanOut(ctx, g, node.Name, state, []domain.Send{{Node: node.Name}}, depth)
		if err != nil {
			return "", state, err
		}
		next, ok := g.Successor(node.Name)
		if !ok {
			return "", state, domain.Errorf(domain.KindGraphConfig, "route", "subgraph node %q has no static successor", node.Name)
		}
		return next, merged, nil

	case graph.KindHuman:
		return "", state, domain.Errorf(domain.KindGraphConfig, "route", "human node %q cannot run inside a child graph", node.Name)
	}
	return "", state, domain.Errorf(domain.KindGraphConfig, "route", "node %q has unknown kind %q", node.Name, node.Kind)
}

// route merges the node output, then picks the successor. Conditional targets
// always see the state that includes their own routing update.
func (e *Engine) route(ctx context.Context, g *graph.Graph, node *graph.Node, state domain.State, out domain.Output, depth int) (string, domain.State, error) {
	var cmd domain.Command
	switch o := out.(type) {
	case nil:
	case domain.Update:
		cmd.Update = o
	case domain.Command:
		cmd = o
	case *domain.Command:
		if o != nil {
			cmd = *o
		}
	default:
		return "", state, domain.Errorf(domain.KindGraphConfig, "route", "node %q returned unsupported output %T", node.Name, out)
	}

	if cmd.Goto != "" && cmd.IsFanOut() {
		return "", state, domain.Errorf(domain.KindGraphConfig, "route", "node %q set both goto and sends", node.Name)
	}

	merged, err := e.registry.Merge(g.Schema(), state, cmd.Update)
	if err != nil {
		return "", state, err
	}

	if cmd.IsFanOut() {
		joined, err := e.fanOut(ctx, g, node.Name, merged, cmd.Sends, depth)
		if err != nil {
			return "", state, err
		}
		next, err := joinSuccessor(g, node.Name, cmd.Sends)
		if err != nil {
			return "", state, err
		}
		return next, joined, nil
	}

	target := cmd.Goto
	if target == "" {
		next, ok := g.Successor(node.Name)
		if !ok {
			return "", state, domain.Errorf(domain.KindGraphConfig, "route", "node %q returned no target and has no static successor", node.Name)
		}
		target = next
	}
	if !g.Has(target) {
		return "", state, domain.Errorf(domain.KindGraphConfig, "route", "node %q routed to undefined node %q", node.Name, target)
	}
	return target, merged, nil
}

// joinSuccessor resolves where the parent continues after a fan-out: the static
// successor of the dispatching node, or else the common successor of all targets.
func joinSuccessor(g *graph.Graph, source string, sends []domain.Send) (string, error) {
	if next, ok := g.Successor(source); ok {
		return next, nil
	}
	var next string
	for _, s := range sends {
		to, ok := g.Successor(s.Node)
		if !ok {
			return "", domain.Errorf(domain.KindGraphConfig, "route", "fan-out target %q has no static successor", s.Node)
		}
		if next != "" && next != to {
			return "", domain.Errorf(domain.KindGraphConfig, "route", "fan-out targets of %q join at different nodes (%s, %s)", source, next, to)
		}
		next = to
	}
	return next, nil
}
