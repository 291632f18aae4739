package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/registry"
)

const (
	DefaultMaxConcurrency = 4
	DefaultMaxSteps       = 1000
)

// Engine drives a compiled graph node by node, persisting a checkpoint after
// every completed node and at every suspension point.
type Engine struct {
	graph          *graph.Graph
	store          ports.CheckpointStore
	registry       *registry.Registry
	logger         *slog.Logger
	hooks          domain.LifecycleHooks
	maxConcurrency int
	maxSteps       int
	now            func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithStore sets the checkpoint store. It is required.
func WithStore(store ports.CheckpointStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRegistry replaces the reducer registry (e.g. to add custom reducers).
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithMaxConcurrency caps the number of fan-out children running at once.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithMaxSteps bounds the number of nodes a single graph walk may execute.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithClock overrides the time source used for checkpoints and events.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine for g.
func NewEngine(g *graph.Graph, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: graph is required", domain.ErrGraphConfig)
	}
	e := &Engine{
		graph:          g,
		registry:       registry.NewRegistry(),
		logger:         logging.NewNop(),
		maxConcurrency: DefaultMaxConcurrency,
		maxSteps:       DefaultMaxSteps,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if err := e.validateSchemas(g); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) validateSchemas(g *graph.Graph) error {
	if err := e.registry.Validate(g.Schema()); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindSubgraph {
			if err := e.validateSchemas(n.Subgraph); err != nil {
				return err
			}
		}
	}
	return nil
}

// Graph returns the graph driven by the engine.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Start creates the checkpoint of a new run at the entry node and drives it
// until it suspends for input or reaches End.
func (e *Engine) Start(ctx context.Context, runID string, initial map[string]any) (*domain.Outcome, error) {
	if runID == "" {
		return nil, errors.New("run ID cannot be empty")
	}
	if _, err := e.store.Load(ctx, runID); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunExists, runID)
	} else if !errors.Is(err, domain.ErrCheckpointNotFound) {
		return nil, fmt.Errorf("failed to check run %s: %w", runID, err)
	}

	entry := e.graph.Entry()
	cp := domain.NewCheckpoint(runID, entry, e.graph.Schema().Init(initial))
	cp.Status = e.statusFor(entry)
	if err := e.save(ctx, cp); err != nil {
		return nil, err
	}
	e.logger.Info("run started", "run_id", runID, "entry", entry)
	return e.drive(ctx, cp)
}

// Resume re-enters a run at its pending node.
// A run awaiting input or already finished is reported as is.
func (e *Engine) Resume(ctx context.Context, runID string) (*domain.Outcome, error) {
	cp, err := e.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("run resumed", "run_id", runID, "pending", cp.Pending, "status", cp.Status)
	return e.drive(ctx, cp)
}

// Provide hands one line of external input to the pending human node.
// The node's update is merged and the checkpoint moves to the node chosen by
// the input. Nothing else executes; call Resume to continue.
func (e *Engine) Provide(ctx context.Context, runID string, input string) (*domain.Outcome, error) {
	cp, err := e.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	switch cp.Status {
	case domain.StatusTerminated:
		return nil, fmt.Errorf("%w: %s", domain.ErrRunFinished, runID)
	case domain.StatusActive:
		return nil, fmt.Errorf("%w: %s is pending at %q", domain.ErrNotAwaitingInput, runID, cp.Pending)
	}
	if err := ctx.Err(); err != nil {
		return nil, abortErr(err)
	}

	node, ok := e.graph.Node(cp.Pending)
	if !ok || node.Kind != graph.KindHuman {
		return nil, domain.Errorf(domain.KindGraphConfig, "provide", "pending node %q is not a human node", cp.Pending)
	}

	ctx = domain.WithRunInfo(ctx, domain.RunInfo{RunID: runID})
	cmd, err := e.executeHuman(ctx, node, cp.State, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortErr(ctx.Err())
		}
		return nil, fmt.Errorf("node %q failed: %w", node.Name, err)
	}
	if cmd.IsFanOut() {
		return nil, domain.Errorf(domain.KindGraphConfig, "provide", "human node %q cannot fan out", node.Name)
	}

	target := cmd.Goto
	if target == "" {
		next, ok := e.graph.Successor(node.Name)
		if !ok {
			return nil, domain.Errorf(domain.KindGraphConfig, "provide", "human node %q chose no target", node.Name)
		}
		target = next
	}
	if !e.graph.Has(target) {
		return nil, domain.Errorf(domain.KindGraphConfig, "provide", "node %q routed to undefined node %q", node.Name, target)
	}

	merged, err := e.registry.Merge(e.graph.Schema(), cp.State, cmd.Update)
	if err != nil {
		return nil, err
	}
	next := e.advance(cp, node.Name, target, merged)
	if err := e.save(ctx, next); err != nil {
		return nil, err
	}
	e.logger.Info("input accepted", "run_id", runID, "node", node.Name, "next", target)
	return outcomeOf(next), nil
}

// Load returns the stored checkpoint of a run.
func (e *Engine) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	cp, err := e.store.Load(ctx, runID)
	if err != nil {
		if errors.Is(err, domain.ErrCheckpointNotFound) {
			return nil, &domain.Error{Kind: domain.KindNotFound, Op: "load", Err: fmt.Errorf("run %s: %w", runID, err)}
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return cp, nil
}

// drive executes parent-graph nodes until the run suspends, terminates or fails.
// A failure leaves the last saved checkpoint untouched.
func (e *Engine) drive(ctx context.Context, cp *domain.Checkpoint) (*domain.Outcome, error) {
	ctx = domain.WithRunInfo(ctx, domain.RunInfo{RunID: cp.RunID})
	log := e.logger.With("run_id", cp.RunID)
	walked := 0

	for cp.Status == domain.StatusActive {
		// Safe point: the previous node is persisted and nothing new is dispatched.
		if err := ctx.Err(); err != nil {
			log.Warn("run aborted", "pending", cp.Pending, "err", err)
			return nil, abortErr(err)
		}
		if walked >= e.maxSteps {
			return nil, domain.Errorf(domain.KindGraphConfig, "run", "exceeded %d steps without reaching %s", e.maxSteps, domain.End)
		}

		node, ok := e.graph.Node(cp.Pending)
		if !ok {
			return nil, domain.Errorf(domain.KindGraphConfig, "run", "pending node %q is not defined", cp.Pending)
		}

		next, state, err := e.step(ctx, e.graph, node, cp.State, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil, abortErr(ctx.Err())
			}
			log.Error("node failed", "node", node.Name, "err", err)
			e.recordFailure(ctx, cp, node, err)
			return nil, fmt.Errorf("node %q failed: %w", node.Name, err)
		}

		cp = e.advance(cp, node.Name, next, state)
		if err := e.save(ctx, cp); err != nil {
			return nil, err
		}
		walked++
		log.Debug("node completed", "node", node.Name, "next", next, "step", cp.Step)
	}

	if cp.Status == domain.StatusTerminated {
		log.Info("run finished", "steps", cp.Step)
	} else {
		log.Info("run suspended", "pending", cp.Pending)
	}
	return outcomeOf(cp), nil
}

// recordFailure stores the tag of a failed parent node in its error field.
// The run stays pending at the node, so Resume retries it.
func (e *Engine) recordFailure(ctx context.Context, cp *domain.Checkpoint, node *graph.Node, cause error) {
	if node.ErrorField == "" {
		return
	}
	merged, err := e.registry.Merge(e.graph.Schema(), cp.State, domain.Update{node.ErrorField: domain.Tag(cause)})
	if err != nil {
		e.logger.Warn("failed to record node error", "run_id", cp.RunID, "node", node.Name, "err", err)
		return
	}
	failed := cp.Clone()
	failed.State = merged
	if err := e.save(ctx, failed); err != nil {
		e.logger.Warn("failed to record node error", "run_id", cp.RunID, "node", node.Name, "err", err)
	}
}

// walk runs a graph to End without persistence. Used for fan-out children.
func (e *Engine) walk(ctx context.Context, g *graph.Graph, state domain.State, depth int) (domain.State, error) {
	current := g.Entry()
	for steps := 0; current != domain.End; steps++ {
		if err := ctx.Err(); err != nil {
			return state, abortErr(err)
		}
		if steps >= e.maxSteps {
			return state, domain.Errorf(domain.KindGraphConfig, "walk", "exceeded %d steps without reaching %s", e.maxSteps, domain.End)
		}
		node, ok := g.Node(current)
		if !ok {
			return state, domain.Errorf(domain.KindGraphConfig, "walk", "node %q is not defined", current)
		}
		next, merged, err := e.step(ctx, g, node, state, depth)
		if err != nil {
			return state, fmt.Errorf("node %q failed: %w", node.Name, err)
		}
		current, state = next, merged
	}
	return state, nil
}

func (e *Engine) advance(cp *domain.Checkpoint, executed, next string, state domain.State) *domain.Checkpoint {
	out := cp.Clone()
	out.State = state
	out.Pending = next
	out.Status = e.statusFor(next)
	out.Step++
	out.History = append(out.History, executed)
	return out
}

func (e *Engine) statusFor(pending string) domain.ExecutionStatus {
	if pending == domain.End {
		return domain.StatusTerminated
	}
	if n, ok := e.graph.Node(pending); ok && n.Kind == graph.KindHuman {
		return domain.StatusAwaitingInput
	}
	return domain.StatusActive
}

func (e *Engine) save(ctx context.Context, cp *domain.Checkpoint) error {
	cp.UpdatedAt = e.now()
	// A cancelled caller must not prevent the completed node from being persisted.
	if err := e.store.Save(context.WithoutCancel(ctx), cp.RunID, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint for run %s: %w", cp.RunID, err)
	}
	if e.hooks.OnCheckpoint != nil {
		e.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase: domain.EventBase{Timestamp: cp.UpdatedAt, Type: domain.EventCheckpoint, RunID: cp.RunID},
			Pending:   cp.Pending,
			Status:    cp.Status,
			Step:      cp.Step,
		})
	}
	return nil
}

func outcomeOf(cp *domain.Checkpoint) *domain.Outcome {
	return &domain.Outcome{
		RunID:   cp.RunID,
		Status:  cp.Status,
		Pending: cp.Pending,
		Step:    cp.Step,
		State:   cp.State,
	}
}

func abortErr(cause error) error {
	return &domain.Error{Kind: domain.KindAbort, Op: "run", Err: cause}
}
