package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRunsCmd(g *globals) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Manage stored runs",
		Long:  `List, inspect and remove the runs kept in the checkpoint store.`,
	}

	runs.AddCommand(&cobra.Command{
		Use:   "ls",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(true)
			if err != nil {
				return err
			}
			defer app.Close()

			ids, err := app.Engine.Runs(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored runs found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTATUS\tPENDING\tSTEP\tUPDATED")
			for _, id := range ids {
				cp, err := app.Engine.Load(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(w, "%s\tunreadable\t-\t-\t%v\n", id, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", id, cp.Status, cp.Pending, cp.Step, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	})

	runs.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the checkpoint of a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(true)
			if err != nil {
				return err
			}
			defer app.Close()

			cp, err := app.Engine.Load(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load run %q: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(cp)
		},
	})

	runs.AddCommand(&cobra.Command{
		Use:   "rm <run-id>...",
		Short: "Remove one or more runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(true)
			if err != nil {
				return err
			}
			defer app.Close()

			failed := 0
			for _, id := range args {
				if err := app.Engine.Delete(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed run '%s'\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d run(s) could not be removed", failed)
			}
			return nil
		},
	})
	return runs
}
