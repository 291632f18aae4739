package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oklog/ulid/v2"
	"golang.org/x/term"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/presentation/tui"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/research"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/runner"
)

// SessionOptions controls an interactive session.
type SessionOptions struct {
	RunID   string
	Topic   string
	Outline string
	JSON    bool
	In      io.Reader
	Out     io.Writer
}

func (o *SessionOptions) normalize() {
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
}

// Research starts a new run and drives it interactively.
func (a *App) Research(ctx context.Context, opts SessionOptions) (*domain.Outcome, error) {
	opts.normalize()
	if opts.Topic == "" {
		return nil, errors.New("a research topic is required")
	}
	if opts.RunID == "" {
		opts.RunID = ulid.Make().String()
	}
	rc, err := RunConfig(a.Config)
	if err != nil {
		return nil, err
	}

	a.banner(opts)
	a.Logger.Info("run created", "run_id", opts.RunID, "topic", opts.Topic)
	a.system(opts, "Run %s started. Generating the dataset schema...", opts.RunID)

	out, err := a.Engine.Start(ctx, opts.RunID, research.Initial(opts.Topic, opts.Outline, rc))
	if err != nil {
		return out, err
	}
	return a.drive(ctx, opts, out)
}

// Continue resumes a stored run and drives it interactively.
func (a *App) Continue(ctx context.Context, opts SessionOptions) (*domain.Outcome, error) {
	opts.normalize()
	cp, err := a.Engine.Load(ctx, opts.RunID)
	if err != nil {
		return nil, err
	}
	out := &domain.Outcome{
		RunID:   cp.RunID,
		Status:  cp.Status,
		Pending: cp.Pending,
		Step:    cp.Step,
		State:   cp.State,
	}

	a.banner(opts)
	a.Logger.Info("run resumed", "run_id", cp.RunID, "pending", cp.Pending, "status", cp.Status)
	if !out.Done() {
		a.system(opts, "Resuming run %s at '%s'...", cp.RunID, cp.Pending)
	}
	return a.drive(ctx, opts, out)
}

func (a *App) drive(ctx context.Context, opts SessionOptions, out *domain.Outcome) (*domain.Outcome, error) {
	r := runner.New(runner.WithHandler(a.handler(opts)), runner.WithLogger(a.Logger))
	out, err := r.Run(ctx, a.Engine, out)
	if err != nil {
		return out, err
	}

	path, err := research.WriteDataset(a.Config.Output.Dir, a.Now(), out.State)
	if err != nil {
		return out, err
	}
	a.Logger.Info("dataset written", "run_id", out.RunID, "path", path)
	a.system(opts, "Dataset written to %s (%d records).", path, len(out.State.Sequence(research.FieldFinalDataset)))
	if tags := out.State.Sequence(research.FieldError); len(tags) > 0 {
		a.system(opts, "%d failure(s) recorded: %v", len(tags), tags)
	}
	return out, nil
}

func (a *App) handler(opts SessionOptions) runner.IOHandler {
	if opts.JSON {
		return runner.NewJSONHandler(opts.In, opts.Out)
	}
	var hopts []runner.TextHandlerOption
	if width, ok := terminalWidth(opts.Out); ok {
		hopts = append(hopts, runner.WithTextHandlerRenderer(runner.ContentRenderer(tui.NewRenderer(width))))
	}
	return runner.NewTextHandler(opts.In, opts.Out, hopts...)
}

func (a *App) banner(opts SessionOptions) {
	if _, ok := terminalWidth(opts.Out); ok && !opts.JSON {
		tui.PrintBanner(opts.Out)
	}
}

func (a *App) system(opts SessionOptions, format string, args ...any) {
	if opts.JSON {
		return
	}
	fmt.Fprintf(opts.Out, ">>> %s\n", fmt.Sprintf(format, args...))
}

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

// Quiet maps the errors that end a session normally to nil.
func Quiet(err error) error {
	if errors.Is(err, domain.ErrUserAbort) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
