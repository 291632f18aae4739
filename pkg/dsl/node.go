package dsl

import (
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    graph.Node
	next    []string
	builder *Builder
}

// Do sets the work function and marks the node as a work node.
func (n *NodeBuilder) Do(fn graph.NodeFunc) *NodeBuilder {
	n.node.Kind = graph.KindWork
	n.node.Fn = fn
	return n
}

// Human sets the input handler and marks the node as a human node.
func (n *NodeBuilder) Human(fn graph.HumanFunc) *NodeBuilder {
	n.node.Kind = graph.KindHuman
	n.node.Human = fn
	return n
}

// Review configures the node as a sentinel-based human review step.
func (n *NodeBuilder) Review(cfg graph.ReviewConfig) *NodeBuilder {
	n.node = graph.Review(n.node.Name, cfg)
	return n
}

// Subgraph runs g as an isolated child and merges back the given output fields.
func (n *NodeBuilder) Subgraph(g *graph.Graph, outputs ...string) *NodeBuilder {
	n.node.Kind = graph.KindSubgraph
	n.node.Subgraph = g
	n.node.Outputs = outputs
	return n
}

// ErrorField names the parent field that receives the failure tag of the node.
func (n *NodeBuilder) ErrorField(field string) *NodeBuilder {
	n.node.ErrorField = field
	return n
}

// Go adds the static successor of the node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.next = append(n.next, target)
	return n
}

// Terminal routes the node to End.
func (n *NodeBuilder) Terminal() *NodeBuilder {
	return n.Go(domain.End)
}

// Routes declares the Command targets the node may choose.
func (n *NodeBuilder) Routes(targets ...string) *NodeBuilder {
	n.node.Routes = append(n.node.Routes, targets...)
	return n
}

// Prompt sets the question shown to the external actor of a human node.
func (n *NodeBuilder) Prompt(text string) *NodeBuilder {
	n.node.Prompt = text
	return n
}

// Present sets how the content under review is shown.
func (n *NodeBuilder) Present(fn func(domain.State) string) *NodeBuilder {
	n.node.Present = fn
	return n
}

// Build returns the underlying graph.Node.
func (n *NodeBuilder) Build() graph.Node {
	return n.node
}
