package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/cli"
)

func newValidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and compile the workflow",
		Long:  `Loads the configuration, opens the checkpoint store and compiles the workflow graph without calling any external service.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cli.RunConfig(g.cfg); err != nil {
				return fmt.Errorf("invalid run parameters: %w", err)
			}
			app, err := g.app(true)
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			defer app.Close()

			if _, err := app.Engine.Runs(cmd.Context()); err != nil {
				return fmt.Errorf("checkpoint store unreachable: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d nodes, %s store).\n",
				len(app.Engine.Inspect()), g.cfg.Store.Backend)
			return nil
		},
	}
}
