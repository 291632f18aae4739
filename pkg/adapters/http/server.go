// Package http exposes runs of an engine over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/runner"
)

// Engine is the part of the engine facade served over HTTP.
type Engine interface {
	Start(ctx context.Context, runID string, initial map[string]any) (*domain.Outcome, error)
	Provide(ctx context.Context, runID, input string) (*domain.Outcome, error)
	Resume(ctx context.Context, runID string) (*domain.Outcome, error)
	Load(ctx context.Context, runID string) (*domain.Checkpoint, error)
	Runs(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, runID string) error
	Graph() *graph.Graph
}

// Server serves an Engine.
type Server struct {
	Engine  Engine
	Streams *StreamManager
	Version string
	// Seed turns a start request into the initial state. The default uses the request state as is.
	Seed    func(StartRequest) (map[string]any, error)
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.Version = v }
}

// WithSeed sets how start requests become initial states.
func WithSeed(fn func(StartRequest) (map[string]any, error)) Option {
	return func(s *Server) { s.Seed = fn }
}

// StartRequest is the body of POST /runs.
type StartRequest struct {
	RunID string         `json:"run_id,omitempty"`
	State map[string]any `json:"state,omitempty"`
	// Params carries domain-specific start parameters interpreted by Seed.
	Params map[string]any `json:"params,omitempty"`
}

// InputRequest is the body of POST /runs/{id}/input.
type InputRequest struct {
	Input string `json:"input"`
}

// RunView is the JSON view of a run.
type RunView struct {
	RunID   string                 `json:"run_id"`
	Status  domain.ExecutionStatus `json:"status"`
	Pending string                 `json:"pending"`
	Step    int                    `json:"step"`
	State   domain.State           `json:"state"`
	Prompt  *runner.Prompt         `json:"prompt,omitempty"`
}

// NodeView describes one node of the graph.
type NodeView struct {
	Name      string     `json:"name"`
	Kind      graph.Kind `json:"kind"`
	Next      string     `json:"next,omitempty"`
	Routes    []string   `json:"routes,omitempty"`
	Subgraph  []NodeView `json:"subgraph,omitempty"`
	Outputs   []string   `json:"outputs,omitempty"`
	IsEntry   bool       `json:"entry,omitempty"`
	Prompt    string     `json:"prompt,omitempty"`
	ErrorSink string     `json:"error_field,omitempty"`
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		Version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Seed == nil {
		s.Seed = func(req StartRequest) (map[string]any, error) { return req.State, nil }
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Post("/", s.StartRun)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.GetRun)
			r.Delete("/", s.DeleteRun)
			r.Post("/input", s.ProvideInput)
			r.Post("/resume", s.ResumeRun)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "deepresearch",
		"version": strings.TrimSpace(s.Version),
	})
}

// GetGraph handles GET /graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, describe(s.Engine.Graph()))
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Engine.Runs(r.Context())
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}
	sort.Strings(runs)
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// StartRun handles POST /runs.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("StartRun: invalid request body", "err", err)
		return
	}
	if body.RunID == "" {
		body.RunID = ulid.Make().String()
	}
	initial, err := s.Seed(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid start parameters: %v", err), http.StatusBadRequest)
		return
	}

	out, err := s.Engine.Start(r.Context(), body.RunID, initial)
	s.respondOutcome(w, "start", body.RunID, out, err, http.StatusCreated)
}

// GetRun handles GET /runs/{runID}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Engine.Load(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, "load run", err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.view(&domain.Outcome{
		RunID:   cp.RunID,
		Status:  cp.Status,
		Pending: cp.Pending,
		Step:    cp.Step,
		State:   cp.State,
	}))
}

// DeleteRun handles DELETE /runs/{runID}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "runID")); err != nil {
		s.fail(w, "delete run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProvideInput handles POST /runs/{runID}/input.
func (s *Server) ProvideInput(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	var body InputRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("ProvideInput: invalid request body", "err", err)
		return
	}
	input, err := runner.SanitizeInput(strings.TrimSpace(body.Input))
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("ProvideInput: input rejected", "err", err, "size", len(body.Input))
		return
	}

	out, err := s.Engine.Provide(r.Context(), runID, input)
	s.respondOutcome(w, "provide", runID, out, err, http.StatusOK)
}

// ResumeRun handles POST /runs/{runID}/resume.
func (s *Server) ResumeRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	out, err := s.Engine.Resume(r.Context(), runID)
	s.respondOutcome(w, "resume", runID, out, err, http.StatusOK)
}

func (s *Server) respondOutcome(w http.ResponseWriter, op, runID string, out *domain.Outcome, err error, okStatus int) {
	if err != nil {
		s.Streams.Broadcast(runID, mustJSON(map[string]string{"run_id": runID, "error": err.Error()}))
		s.fail(w, op, err)
		return
	}
	view := s.view(out)
	s.Streams.Broadcast(runID, mustJSON(view))
	s.writeJSON(w, okStatus, view)
}

func (s *Server) view(out *domain.Outcome) RunView {
	v := RunView{
		RunID:   out.RunID,
		Status:  out.Status,
		Pending: out.Pending,
		Step:    out.Step,
		State:   out.State,
	}
	if out.Status == domain.StatusAwaitingInput {
		if node, ok := s.Engine.Graph().Node(out.Pending); ok {
			p := &runner.Prompt{RunID: out.RunID, Node: node.Name, Question: node.Prompt}
			if node.Present != nil {
				p.Content = node.Present(out.State)
			}
			v.Prompt = p
		}
	}
	return v
}

func describe(g *graph.Graph) []NodeView {
	nodes := g.Nodes()
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		v := NodeView{
			Name:      n.Name,
			Kind:      n.Kind,
			Routes:    n.Routes,
			Outputs:   n.Outputs,
			IsEntry:   n.Name == g.Entry(),
			Prompt:    n.Prompt,
			ErrorSink: n.ErrorField,
		}
		if next, ok := g.Successor(n.Name); ok {
			v.Next = next
		}
		if n.Subgraph != nil {
			v.Subgraph = describe(n.Subgraph)
		}
		out = append(out, v)
	}
	return out
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunExists),
		errors.Is(err, domain.ErrRunFinished),
		errors.Is(err, domain.ErrAwaitingInput),
		errors.Is(err, domain.ErrNotAwaitingInput):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTransient):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "err", err)
	} else {
		s.logger.Debug("request rejected", "op", op, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}
