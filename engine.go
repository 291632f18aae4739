package deepresearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/runtime"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/memory"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/registry"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/session"
)

// Engine is the high-level entry point of the library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	store       ports.CheckpointStore
	sessions    *session.Manager
	locker      ports.DistributedLocker
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	runtimeOpts []runtime.Option
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store (default: in-memory).
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serializes runs across processes sharing one store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRegistry sets the reducer registry used to merge updates.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithRegistry(reg))
	}
}

// WithMaxConcurrency caps how many fan-out children run at once (default: 4).
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxConcurrency(n))
	}
}

// WithMaxSteps bounds how many nodes one graph walk may execute (default: 1000).
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithMaxSteps(n))
	}
}

// WithClock overrides the time source used for checkpoints and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, runtime.WithClock(now))
	}
}

// WithName labels the engine; the name is added to every log line.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes an Engine for a compiled graph.
func New(g *graph.Graph, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}
	// Ensure logger is initialized so the runtime never sees nil.
	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("graph", eng.Name)
	}

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	runtimeOpts := []runtime.Option{
		runtime.WithStore(eng.store),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
	}
	runtimeOpts = append(runtimeOpts, eng.runtimeOpts...)

	rt, err := runtime.NewEngine(g, runtimeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize runtime: %w", err)
	}
	eng.runtime = rt
	return eng, nil
}

// Start creates a new run at the entry node and drives it until it suspends or ends.
func (e *Engine) Start(ctx context.Context, runID string, initial map[string]any) (*domain.Outcome, error) {
	return e.locked(ctx, runID, func(ctx context.Context) (*domain.Outcome, error) {
		return e.runtime.Start(ctx, runID, initial)
	})
}

// Provide hands one line of external input to a run awaiting input.
func (e *Engine) Provide(ctx context.Context, runID, input string) (*domain.Outcome, error) {
	return e.locked(ctx, runID, func(ctx context.Context) (*domain.Outcome, error) {
		return e.runtime.Provide(ctx, runID, input)
	})
}

// Resume continues a run from its pending node.
func (e *Engine) Resume(ctx context.Context, runID string) (*domain.Outcome, error) {
	return e.locked(ctx, runID, func(ctx context.Context) (*domain.Outcome, error) {
		return e.runtime.Resume(ctx, runID)
	})
}

func (e *Engine) locked(ctx context.Context, runID string, fn func(context.Context) (*domain.Outcome, error)) (*domain.Outcome, error) {
	var out *domain.Outcome
	err := e.sessions.WithLock(ctx, runID, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Load returns the last checkpoint of a run.
func (e *Engine) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	return e.runtime.Load(ctx, runID)
}

// Runs lists the IDs of stored runs.
func (e *Engine) Runs(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Delete removes a stored run.
func (e *Engine) Delete(ctx context.Context, runID string) error {
	return e.sessions.Delete(ctx, runID)
}

// Graph returns the compiled graph driven by the engine.
func (e *Engine) Graph() *graph.Graph {
	return e.runtime.Graph()
}

// Inspect returns the nodes of the graph in declaration order, for visualization tools.
func (e *Engine) Inspect() []*graph.Node {
	return e.runtime.Graph().Nodes()
}

// Store returns the checkpoint store used by the engine.
func (e *Engine) Store() ports.CheckpointStore {
	return e.store
}
