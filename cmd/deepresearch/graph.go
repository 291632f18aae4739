package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/presentation/graph"
)

func newGraphCmd(g *globals) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the workflow as a Mermaid diagram",
		Long:  `Prints a Mermaid flowchart (graph TD) of the research workflow. With --run, the visited nodes and the pending node of that run are highlighted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(true)
			if err != nil {
				return err
			}
			defer app.Close()

			var overlay *graph.GraphOverlay
			if runID != "" {
				cp, err := app.Engine.Load(cmd.Context(), runID)
				if err != nil {
					return fmt.Errorf("failed to load run %q: %w", runID, err)
				}
				overlay = graph.OverlayFor(cp)
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(app.Engine.Graph(), overlay))
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Highlight the progress of a stored run")
	return cmd
}
