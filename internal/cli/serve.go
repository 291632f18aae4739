package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpapi "github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/http"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/research"
)

const shutdownTimeout = 5 * time.Second

// Seed turns the params of an HTTP start request into the initial state of a
// research run. params.config overrides the configured run parameters.
func (a *App) Seed(req httpapi.StartRequest) (map[string]any, error) {
	topic, _ := req.Params["topic"].(string)
	if topic == "" {
		return nil, errors.New("params.topic is required")
	}
	outline, _ := req.Params["outline"].(string)

	rc, err := RunConfig(a.Config)
	if err != nil {
		return nil, err
	}
	if raw, ok := req.Params["config"].(map[string]any); ok {
		if err := domain.DecodeValue(raw, &rc); err != nil {
			return nil, fmt.Errorf("invalid params.config: %w", err)
		}
		if err := rc.Validate(); err != nil {
			return nil, err
		}
	}
	return research.Initial(topic, outline, rc), nil
}

// Handler returns the HTTP API of the app.
func (a *App) Handler(version string) http.Handler {
	return httpapi.NewHandler(a.Engine,
		httpapi.WithSeed(a.Seed),
		httpapi.WithMetrics(a.Metrics.Handler()),
		httpapi.WithLogger(a.Logger),
		httpapi.WithVersion(version),
	)
}

// Serve runs the HTTP API on addr until ctx is done.
func (a *App) Serve(ctx context.Context, addr, version string) error {
	return a.listen(ctx, &http.Server{Addr: addr, Handler: a.Handler(version), ReadHeaderTimeout: 10 * time.Second})
}

// ServeMetrics exposes /metrics on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	return a.listen(ctx, &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
}

func (a *App) listen(ctx context.Context, srv *http.Server) error {
	serverErrors := make(chan error, 1)
	go func() {
		a.Logger.Info("listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			return srv.Close()
		}
		a.Logger.Info("server stopped", "addr", srv.Addr)
		return nil
	}
}
