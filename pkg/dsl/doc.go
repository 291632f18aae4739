/*
Package dsl provides a fluent builder for constructing workflow graphs in Go.

It is a thin layer over graph.Compile: nodes are declared in order, each with
its work function and successor, and Build validates the whole graph.

Example usage:

	b := dsl.New(schema)

	b.Add("draft").
		Do(draftFn).
		Go("review")

	b.Add("review").
		Review(graph.ReviewConfig{Sentinel: "continue", Forward: "publish", Back: "draft", LogField: "messages"})

	b.Add("publish").
		Do(publishFn).
		Go(domain.End)

	g, err := b.Entry("draft").Build()
*/
package dsl
