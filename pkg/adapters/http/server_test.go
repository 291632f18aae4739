package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	deepresearch "github.com/Thesius-ai/thesius-deepresearch-cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/dsl"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *deepresearch.Engine {
	t.Helper()
	schema := domain.MustSchema(
		domain.Replace("topic", domain.TypeString),
		domain.Replace("draft", domain.TypeString),
		domain.Append("feedback"),
	)
	b := dsl.New(schema)
	b.Add("plan").Do(func(_ context.Context, s domain.State) (domain.Output, error) {
		topic, _ := s.Get("topic")
		return domain.Update{"draft": fmt.Sprintf("outline of %v", topic)}, nil
	}).Go("review")
	b.Add("review").Review(graph.ReviewConfig{
		Sentinel: "continue",
		Forward:  "done",
		Back:     "plan",
		LogField: "feedback",
		Prompt:   "Approve?",
		Present: func(s domain.State) string {
			v, _ := s.Get("draft")
			return fmt.Sprint(v)
		},
	})
	b.Add("done").Do(func(context.Context, domain.State) (domain.Output, error) {
		return domain.Update{}, nil
	}).Terminal()

	eng, err := deepresearch.New(b.MustBuild())
	require.NoError(t, err)
	return eng
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRunLifecycle(t *testing.T) {
	h := NewHandler(newEngine(t))

	w := do(t, h, http.MethodPost, "/runs", StartRequest{RunID: "r1", State: map[string]any{"topic": "tides"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[RunView](t, w)
	assert.Equal(t, domain.StatusAwaitingInput, started.Status)
	assert.Equal(t, "review", started.Pending)
	require.NotNil(t, started.Prompt)
	assert.Equal(t, "outline of tides", started.Prompt.Content)
	assert.Equal(t, "Approve?", started.Prompt.Question)

	w = do(t, h, http.MethodPost, "/runs", StartRequest{RunID: "r1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/runs/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "review", decode[RunView](t, w).Pending)

	w = do(t, h, http.MethodPost, "/runs/r1/input", InputRequest{Input: " continue "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	done := decode[RunView](t, w)
	assert.Equal(t, domain.StatusTerminated, done.Status)
	assert.Nil(t, done.Prompt)

	w = do(t, h, http.MethodPost, "/runs/r1/input", InputRequest{Input: "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, h, http.MethodGet, "/runs", nil)
	assert.Equal(t, []any{"r1"}, decode[map[string]any](t, w)["runs"])

	w = do(t, h, http.MethodDelete, "/runs/r1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/runs/r1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRun_GeneratesIDAndSeeds(t *testing.T) {
	h := NewHandler(newEngine(t), WithSeed(func(req StartRequest) (map[string]any, error) {
		topic, ok := req.Params["topic"].(string)
		if !ok {
			return nil, fmt.Errorf("topic is required")
		}
		return map[string]any{"topic": strings.ToUpper(topic)}, nil
	}))

	w := do(t, h, http.MethodPost, "/runs", StartRequest{Params: map[string]any{"topic": "moss"}})
	require.Equal(t, http.StatusCreated, w.Code)
	v := decode[RunView](t, w)
	assert.Len(t, v.RunID, 26)
	assert.Equal(t, "outline of MOSS", v.Prompt.Content)

	w = do(t, h, http.MethodPost, "/runs", StartRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProvideInput_Rejections(t *testing.T) {
	h := NewHandler(newEngine(t))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/runs/x/input", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/runs/x/input", InputRequest{Input: strings.Repeat("a", 5000)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/runs/missing/resume", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInfoHealthGraphMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := NewHandler(newEngine(t), WithVersion("1.2.3\n"), WithMetrics(metrics))

	assert.Equal(t, "ok", decode[map[string]string](t, do(t, h, http.MethodGet, "/health", nil))["status"])
	assert.Equal(t, "1.2.3", decode[map[string]string](t, do(t, h, http.MethodGet, "/info", nil))["version"])
	assert.Equal(t, "# metrics", do(t, h, http.MethodGet, "/metrics", nil).Body.String())

	nodes := decode[[]NodeView](t, do(t, h, http.MethodGet, "/graph", nil))
	require.Len(t, nodes, 3)
	assert.True(t, nodes[0].IsEntry)
	assert.Equal(t, "review", nodes[0].Next)
	assert.Equal(t, graph.KindHuman, nodes[1].Kind)
	assert.ElementsMatch(t, []string{"done", "plan"}, nodes[1].Routes)
	assert.Equal(t, domain.End, nodes[2].Next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/runs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubscribeEvents(t *testing.T) {
	h := NewHandler(newEngine(t))
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/runs/r1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	body, _ := json.Marshal(StartRequest{RunID: "r1", State: map[string]any{"topic": "ice"}})
	startResp, err := http.Post(srv.URL+"/runs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	startResp.Body.Close()

	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			assert.Contains(t, lines.Text(), `"pending":"review"`)
			return
		}
	}
	t.Fatal("no run event received")
}
