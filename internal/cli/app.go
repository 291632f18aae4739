// Package cli wires configuration, storage, collaborators and the research
// pipeline into a ready-to-run engine for the command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	deepresearch "github.com/Thesius-ai/thesius-deepresearch-cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/config"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/file"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/llm"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/memory"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/redis"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/tavily"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/observability"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/persistence/middleware"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/research"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/retry"
)

// ErrOffline is returned by the placeholder collaborators of offline commands.
var ErrOffline = errors.New("no model or search provider configured for this command")

// Collaborators are the external services the pipeline calls.
type Collaborators struct {
	LLM    ports.Invoker
	Search ports.Searcher
}

// Offline returns collaborators that always fail. Commands that only inspect
// the graph or stored runs use them so no API keys are needed.
func Offline() *Collaborators {
	return &Collaborators{LLM: offline{}, Search: offline{}}
}

type offline struct{}

func (offline) Invoke(context.Context, ports.Request) (ports.Response, error) {
	return ports.Response{}, ErrOffline
}

func (offline) Search(context.Context, string, int) ([]string, error) {
	return nil, ErrOffline
}

// App is a fully wired engine plus the pieces the commands need around it.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Engine  *deepresearch.Engine
	Metrics *observability.Metrics
	Now     func() time.Time

	closers []func() error
}

// NewApp builds the application. When collab is nil the collaborators are
// created from cfg.
func NewApp(cfg *config.Config, logger *slog.Logger, collab *Collaborators) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Now: time.Now}

	if collab == nil {
		var err error
		if collab, err = newCollaborators(cfg, logger); err != nil {
			return nil, err
		}
	}

	store, locker, closeStore, err := NewStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}

	g, err := buildGraph(cfg, logger, collab)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Metrics = observability.NewMetrics()
	opts := []deepresearch.Option{
		deepresearch.WithName("deepresearch"),
		deepresearch.WithStore(store),
		deepresearch.WithLogger(logger),
		deepresearch.WithMaxConcurrency(cfg.FanOut.MaxConcurrency),
		deepresearch.WithLifecycleHooks(observability.Combine(
			app.Metrics.Hooks(),
			observability.LoggingHooks(logger),
		)),
	}
	if locker != nil {
		opts = append(opts, deepresearch.WithLocker(locker))
	}

	app.Engine, err = deepresearch.New(g, opts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// Close releases the store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// RunConfig converts the run section into the parameters stored with a new run.
func RunConfig(cfg *config.Config) (research.RunConfig, error) {
	rc := research.RunConfig{
		MaxQueries:             cfg.Run.MaxQueries,
		SearchDepth:            cfg.Run.SearchDepth,
		NumReflections:         cfg.Run.NumReflections,
		MaxRowsFromEachSection: cfg.Run.MaxRowsFromEachSection,
		LegacyReflectionGate:   cfg.Run.LegacyReflectionGate,
	}
	return rc, rc.Validate()
}

func buildGraph(cfg *config.Config, logger *slog.Logger, collab *Collaborators) (*graph.Graph, error) {
	delay, err := cfg.Retry.Delay()
	if err != nil {
		return nil, err
	}
	pipeline := research.NewPipeline(collab.LLM, collab.Search,
		research.WithRetryPolicy(retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: delay}),
		research.WithLogger(logger),
	)
	return pipeline.Graph()
}

func newCollaborators(cfg *config.Config, logger *slog.Logger) (*Collaborators, error) {
	model, err := llm.NewFromConfig(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
	}, llm.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	if cfg.Search.Provider != "tavily" {
		return nil, fmt.Errorf("unsupported search provider %q", cfg.Search.Provider)
	}
	search, err := tavily.New(cfg.Search.APIKey, tavily.WithBaseURL(cfg.Search.BaseURL), tavily.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &Collaborators{LLM: model, Search: search}, nil
}

// NewStore opens the configured checkpoint store. The locker is only set for
// redis; the closer is nil when nothing needs releasing.
func NewStore(cfg config.StoreSection) (ports.CheckpointStore, ports.DistributedLocker, func() error, error) {
	var (
		store  ports.CheckpointStore
		locker ports.DistributedLocker
		closer func() error
	)

	switch cfg.Backend {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile:
		store = file.New(cfg.Path)
	case config.StoreRedis:
		ttl, err := cfg.Expiry()
		if err != nil {
			return nil, nil, nil, err
		}
		opts := []redis.Option{redis.WithTTL(ttl)}
		if cfg.RedisPrefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.RedisPrefix))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		prefix := cfg.RedisPrefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		store, locker, closer = rs, redis.NewLocker(rs.Client(), prefix), rs.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	if cfg.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, nil, nil, err
		}
		store = middleware.Chain(store, enc)
	}
	return store, locker, closer, nil
}
