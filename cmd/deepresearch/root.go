package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/config"
	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
)

type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	store      string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "deepresearch",
		Short:         "Build structured datasets from guided web research",
		Long:          `deepresearch plans a report, researches every section in parallel and turns the findings into a JSON dataset. You review the dataset schema and the report outline before research starts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&g.configPath, "config", "c", "", "Config file (yaml, json or hcl; default ./"+config.DefaultFile+" when present)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")
	flags.StringVar(&g.store, "store", "", "Checkpoint store (memory, file, redis)")

	root.AddCommand(
		newRunCmd(g),
		newResumeCmd(g),
		newRunsCmd(g),
		newGraphCmd(g),
		newValidateCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return root
}

func (g *globals) load() error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if g.store != "" {
		cfg.Store.Backend = g.store
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.logger = logging.New(level, logging.Format(cfg.Log.Format))
	return nil
}

// app builds the application. Offline apps need no API keys.
func (g *globals) app(offline bool) (*cli.App, error) {
	var collab *cli.Collaborators
	if offline {
		collab = cli.Offline()
	}
	return cli.NewApp(g.cfg, g.logger, collab)
}
