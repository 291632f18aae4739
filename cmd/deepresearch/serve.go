package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Serves runs over a JSON API: POST /runs starts a run, POST /runs/{id}/input answers a review, GET /runs/{id}/events streams outcomes. Metrics are exposed on /metrics.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(false)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Serve(cmd.Context(), addr, version)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "Address to listen on")
	return cmd
}
