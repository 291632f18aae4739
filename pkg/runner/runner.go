package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// Driver is the part of the engine the runner needs.
type Driver interface {
	Provide(ctx context.Context, runID, input string) (*domain.Outcome, error)
	Resume(ctx context.Context, runID string) (*domain.Outcome, error)
	Graph() *graph.Graph
}

// Runner handles the interaction loop of a run using the provided IO.
type Runner struct {
	Handler IOHandler
	Logger  *slog.Logger
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithHandler configures the IOHandler.
func WithHandler(h IOHandler) Option {
	return func(r *Runner) {
		r.Handler = h
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// New creates a Runner. It defaults to a TextHandler on stdin/stdout.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	if r.Handler == nil {
		r.Handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.Logger == nil {
		r.Logger = logging.NewNop()
	}
	return r
}

// Run drives out until the run ends. When the user quits, hits end of input or
// interrupts, Run returns the last outcome with domain.ErrUserAbort; the
// checkpoint is untouched and the run can be resumed.
func (r *Runner) Run(ctx context.Context, d Driver, out *domain.Outcome) (*domain.Outcome, error) {
	if out == nil {
		return nil, errors.New("runner: nil outcome")
	}

	signals := NewSignalManager(ctx)
	defer signals.Stop()

	for {
		stepCtx := signals.Context()

		var next *domain.Outcome
		var err error

		switch out.Status {
		case domain.StatusTerminated:
			return out, r.Handler.SystemOutput(ctx, fmt.Sprintf("Run %s finished.", out.RunID))

		case domain.StatusAwaitingInput:
			var input string
			input, err = r.ask(stepCtx, d, out)
			if err != nil {
				if errors.Is(err, io.EOF) || signals.Interrupted() || isQuit(err) {
					return out, r.abort(ctx, out)
				}
				return out, err
			}
			r.Logger.Debug("input received", "run_id", out.RunID, "node", out.Pending)
			next, err = d.Provide(stepCtx, out.RunID, input)

		default:
			next, err = d.Resume(stepCtx, out.RunID)
		}

		if err != nil {
			if signals.Interrupted() {
				return out, r.abort(ctx, out)
			}
			return out, err
		}
		out = next
	}
}

var errQuit = errors.New("quit")

func isQuit(err error) bool { return errors.Is(err, errQuit) }

func (r *Runner) ask(ctx context.Context, d Driver, out *domain.Outcome) (string, error) {
	p := Prompt{RunID: out.RunID, Node: out.Pending}
	if node, ok := d.Graph().Node(out.Pending); ok {
		p.Question = node.Prompt
		if node.Present != nil {
			p.Content = node.Present(out.State)
		}
	}
	if err := r.Handler.Output(ctx, p); err != nil {
		return "", fmt.Errorf("output error: %w", err)
	}

	input, err := r.Handler.Input(ctx)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(input) {
	case "exit", "quit":
		return "", errQuit
	}
	return input, nil
}

func (r *Runner) abort(ctx context.Context, out *domain.Outcome) error {
	r.Logger.Info("interaction stopped", "run_id", out.RunID, "pending", out.Pending)
	_ = r.Handler.SystemOutput(context.WithoutCancel(ctx),
		fmt.Sprintf("Run %s paused at %s. Resume it with: deepresearch resume %s", out.RunID, out.Pending, out.RunID))
	return fmt.Errorf("%w: %s", domain.ErrUserAbort, out.RunID)
}
