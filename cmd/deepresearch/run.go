package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/cli"
)

func newRunCmd(g *globals) *cobra.Command {
	var (
		runID       string
		outline     string
		outlineFile string
		jsonMode    bool
	)

	cmd := &cobra.Command{
		Use:   "run <topic>",
		Short: "Start a new research run",
		Long: `Starts a research run on the given topic. The generated dataset schema and
report outline are shown for review: type 'continue' to approve them, or type
feedback to have them revised. Type 'exit' to pause; the run can be resumed later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outlineFile != "" {
				raw, err := os.ReadFile(outlineFile)
				if err != nil {
					return fmt.Errorf("failed to read outline: %w", err)
				}
				outline = string(raw)
			}

			app, err := g.app(false)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := cli.SessionOptions{
				RunID:   runID,
				Topic:   args[0],
				Outline: outline,
				JSON:    jsonMode,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
			}
			return withMetrics(cmd, g, app, func() error {
				_, err := app.Research(cmd.Context(), opts)
				return cli.Quiet(err)
			})
		},
	}

	cmd.Flags().StringVar(&runID, "id", "", "Run ID (default: a new ULID)")
	cmd.Flags().StringVar(&outline, "outline", "", "Report outline to follow")
	cmd.Flags().StringVar(&outlineFile, "outline-file", "", "Read the report outline from a file")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Exchange prompts and answers as JSON lines")
	return cmd
}

func newResumeCmd(g *globals) *cobra.Command {
	var jsonMode bool

	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a paused or interrupted run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(false)
			if err != nil {
				return err
			}
			defer app.Close()

			opts := cli.SessionOptions{
				RunID: args[0],
				JSON:  jsonMode,
				In:    cmd.InOrStdin(),
				Out:   cmd.OutOrStdout(),
			}
			return withMetrics(cmd, g, app, func() error {
				_, err := app.Continue(cmd.Context(), opts)
				return cli.Quiet(err)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonMode, "json", false, "Exchange prompts and answers as JSON lines")
	return cmd
}

// withMetrics runs fn while serving /metrics when an address is configured.
func withMetrics(cmd *cobra.Command, g *globals, app *cli.App, fn func() error) error {
	if g.cfg.Metrics.Addr == "" {
		return fn()
	}
	eg, ctx := errgroup.WithContext(cmd.Context())
	done := make(chan struct{})
	eg.Go(func() error {
		defer close(done)
		return fn()
	})
	eg.Go(func() error {
		stop, cancel := contextUntil(ctx, done)
		defer cancel()
		return app.ServeMetrics(stop, g.cfg.Metrics.Addr)
	})
	return eg.Wait()
}
