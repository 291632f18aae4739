/*
Package deepresearch is a checkpointed workflow engine for long-running, multi-stage
pipelines, and the home of the deep-research dataset pipeline built on it.

A workflow is a compiled graph of nodes that read an immutable state and return
either a partial update or a routing Command. Updates are merged field by field
through named reducers (replace, append). A Command can jump to another node,
end the run, or fan out into isolated concurrent children whose outputs are
merged back once all of them have finished.

# Suspend and resume

Human-input nodes suspend the run: the engine saves a checkpoint whose pending
node is the human node and returns. Provide hands one line of input to that node
and moves the checkpoint to the node it chooses; Resume continues from there.

# Usage

	schema := domain.MustSchema(
		domain.Replace("draft", domain.TypeString),
		domain.Append("messages"),
	)

	b := dsl.New(schema)
	b.Add("write").Do(write).Go("review")
	b.Add("review").Review(graph.ReviewConfig{
		Sentinel: "continue", Forward: domain.End, Back: "write", LogField: "messages",
	})

	eng, err := deepresearch.New(b.MustBuild())
	if err != nil {
		log.Fatal(err)
	}

	out, err := eng.Start(ctx, "run-1", nil)
	for err == nil && out.Status == domain.StatusAwaitingInput {
		if _, err = eng.Provide(ctx, out.RunID, readLine()); err == nil {
			out, err = eng.Resume(ctx, out.RunID)
		}
	}
*/
package deepresearch
