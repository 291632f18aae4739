package dsl

import (
	"fmt"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// Builder manages the graph construction.
type Builder struct {
	schema *domain.Schema
	entry  string
	order  []string
	nodes  map[string]*NodeBuilder
}

// New creates a new graph builder for the given state schema.
func New(schema *domain.Schema) *Builder {
	return &Builder{
		schema: schema,
		nodes:  make(map[string]*NodeBuilder),
	}
}

// Add creates a new node in the graph.
// If the node already exists, it returns the existing builder.
// The first node added is the default entry point.
func (b *Builder) Add(name string) *NodeBuilder {
	if nb, ok := b.nodes[name]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    graph.Node{Name: name},
		builder: b,
	}
	b.nodes[name] = nb
	b.order = append(b.order, name)
	if b.entry == "" {
		b.entry = name
	}
	return nb
}

// Entry overrides the entry point.
func (b *Builder) Entry(name string) *Builder {
	b.entry = name
	return b
}

// Build compiles the declared nodes into an immutable graph.
func (b *Builder) Build() (*graph.Graph, error) {
	nodes := make([]graph.Node, 0, len(b.order))
	var edges []graph.Edge
	for _, name := range b.order {
		nb := b.nodes[name]
		nodes = append(nodes, nb.node)
		for _, to := range nb.next {
			edges = append(edges, graph.Edge{From: name, To: to})
		}
	}

	g, err := graph.Compile(b.schema, nodes, edges, b.entry)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	return g, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *graph.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}
