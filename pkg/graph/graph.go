package graph

import (
	"context"
	"fmt"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// NodeFunc is the work function of a node.
// It receives an immutable view of the state and returns an Update or a Command.
type NodeFunc func(ctx context.Context, state domain.State) (domain.Output, error)

// HumanFunc handles one line of external input for a human node.
type HumanFunc func(ctx context.Context, state domain.State, input string) (domain.Command, error)

// Kind identifies how the runtime executes a node.
type Kind string

const (
	KindWork     Kind = "work"
	KindHuman    Kind = "human"
	KindSubgraph Kind = "subgraph"
)

// Node is a named unit of work.
type Node struct {
	Name string
	Kind Kind

	Fn    NodeFunc
	Human HumanFunc

	// Subgraph nodes run Subgraph to End. Outputs lists the child fields merged
	// back into the parent.
	// ErrorField receives the tag of a failed child, or of the node itself when
	// it fails in the parent graph.
	Subgraph   *Graph
	Outputs    []string
	ErrorField string

	// Routes declares the Command targets a node may choose.
	Routes []string

	// Prompt and Present describe what a human node asks and shows.
	Prompt  string
	Present func(domain.State) string
}

// Edge is an unconditional link to a fixed successor.
type Edge struct {
	From string
	To   string
}

// Graph is a compiled, immutable workflow definition.
type Graph struct {
	schema *domain.Schema
	entry  string
	order  []string
	nodes  map[string]*Node
	edges  map[string]string
}

// Compile validates nodes and edges and returns the immutable Graph.
// All failures are ErrGraphConfig.
func Compile(schema *domain.Schema, nodes []Node, edges []Edge, entry string) (*Graph, error) {
	if schema == nil {
		return nil, configErr("schema is required")
	}
	g := &Graph{
		schema: schema,
		entry:  entry,
		nodes:  make(map[string]*Node, len(nodes)),
		edges:  make(map[string]string, len(edges)),
	}

	for i := range nodes {
		n := nodes[i]
		if n.Name == "" {
			return nil, configErr("node at position %d has no name", i)
		}
		if n.Name == domain.End {
			return nil, configErr("node name %q is reserved", domain.End)
		}
		if _, dup := g.nodes[n.Name]; dup {
			return nil, configErr("duplicate node %q", n.Name)
		}
		if n.Kind == "" {
			n.Kind = inferKind(n)
		}
		n.Routes = append([]string(nil), n.Routes...)
		n.Outputs = append([]string(nil), n.Outputs...)
		g.nodes[n.Name] = &n
		g.order = append(g.order, n.Name)
	}

	if _, ok := g.nodes[entry]; !ok {
		return nil, configErr("entry node %q is not defined", entry)
	}

	for _, e := range edges {
		if _, ok := g.nodes[e.From]; !ok {
			return nil, configErr("edge source %q is not defined", e.From)
		}
		if !g.defined(e.To) {
			return nil, configErr("edge %s -> %s references an undefined node", e.From, e.To)
		}
		if prev, dup := g.edges[e.From]; dup {
			return nil, configErr("node %q has more than one static successor (%s, %s)", e.From, prev, e.To)
		}
		g.edges[e.From] = e.To
	}

	for _, name := range g.order {
		if err := g.validateNode(g.nodes[name]); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func inferKind(n Node) Kind {
	switch {
	case n.Subgraph != nil:
		return KindSubgraph
	case n.Human != nil:
		return KindHuman
	default:
		return KindWork
	}
}

func (g *Graph) validateNode(n *Node) error {
	switch n.Kind {
	case KindWork:
		if n.Fn == nil {
			return configErr("work node %q has no function", n.Name)
		}
	case KindHuman:
		if n.Human == nil {
			return configErr("human node %q has no handler", n.Name)
		}
	case KindSubgraph:
		if n.Subgraph == nil {
			return configErr("subgraph node %q has no graph", n.Name)
		}
		if n.Subgraph.hasHuman() {
			return configErr("subgraph node %q contains a human node", n.Name)
		}
		if len(n.Outputs) == 0 {
			return configErr("subgraph node %q declares no output fields", n.Name)
		}
		fields := n.Outputs
		if n.ErrorField != "" {
			fields = append(append([]string(nil), fields...), n.ErrorField)
		}
		for _, f := range fields {
			if g.schema.ReducerFor(f) == domain.ReducerReplace {
				return configErr("fan-out field %q of %q must not use the replace reducer", f, n.Name)
			}
		}
	default:
		return configErr("node %q has unknown kind %q", n.Name, n.Kind)
	}

	for _, r := range n.Routes {
		if !g.defined(r) {
			return configErr("node %q routes to undefined node %q", n.Name, r)
		}
	}
	if _, hasEdge := g.edges[n.Name]; !hasEdge && len(n.Routes) == 0 && n.Kind != KindHuman {
		return configErr("node %q has no successor", n.Name)
	}
	return nil
}

func (g *Graph) defined(name string) bool {
	if name == domain.End {
		return true
	}
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) hasHuman() bool {
	for _, n := range g.nodes {
		if n.Kind == KindHuman {
			return true
		}
		if n.Kind == KindSubgraph && n.Subgraph.hasHuman() {
			return true
		}
	}
	return false
}

// Schema returns the state schema of the graph.
func (g *Graph) Schema() *domain.Schema { return g.schema }

// Entry returns the name of the first node.
func (g *Graph) Entry() string { return g.entry }

// Node looks up a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Successor returns the static successor of a node.
func (g *Graph) Successor(name string) (string, bool) {
	to, ok := g.edges[name]
	return to, ok
}

// Has reports whether name is a node of g or the End marker.
func (g *Graph) Has(name string) bool {
	return g.defined(name)
}

func configErr(format string, args ...any) error {
	return &domain.Error{Kind: domain.KindGraphConfig, Op: "compile", Err: fmt.Errorf(format, args...)}
}
