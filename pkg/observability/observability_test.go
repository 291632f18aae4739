package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *observability.Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range f.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: "search", Depth: 1})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{Node: "search", Depth: 1})
	hooks.OnNodeLeave(ctx, &domain.NodeEvent{Node: "search", Duration: time.Millisecond, Err: errors.New("x")})
	hooks.OnRetry(ctx, &domain.RetryEvent{Node: "search", Attempt: 1})
	hooks.OnFanIn(ctx, &domain.FanEvent{Node: "fan", Targets: []string{"a", "b"}, Failures: 1})
	hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{Status: domain.StatusActive})

	assert.Equal(t, 2.0, counterValue(t, m, "deepresearch_node_visits_total", map[string]string{"node": "search", "depth": "child"}))
	assert.Equal(t, 1.0, counterValue(t, m, "deepresearch_node_errors_total", map[string]string{"node": "search"}))
	assert.Equal(t, 1.0, counterValue(t, m, "deepresearch_retries_total", map[string]string{"node": "search"}))
	assert.Equal(t, 1.0, counterValue(t, m, "deepresearch_fanout_child_failures_total", nil))
	assert.Equal(t, 1.0, counterValue(t, m, "deepresearch_checkpoints_total", map[string]string{"status": "active"}))
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.Hooks().OnNodeEnter(context.Background(), &domain.NodeEvent{Node: "a"})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `deepresearch_node_visits_total{depth="parent",node="a"} 1`)
}

func TestCombine(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnRetry: func(context.Context, *domain.RetryEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{
		OnRetry:  func(context.Context, *domain.RetryEvent) { calls = append(calls, "b") },
		OnFanOut: func(context.Context, *domain.FanEvent) { calls = append(calls, "fan") },
	}

	hooks := observability.Combine(a, domain.LifecycleHooks{}, b)
	hooks.OnRetry(context.Background(), &domain.RetryEvent{})
	hooks.OnFanOut(context.Background(), &domain.FanEvent{})

	assert.Equal(t, []string{"a", "b", "fan"}, calls)
	assert.Nil(t, hooks.OnCheckpoint)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hooks := observability.LoggingHooks(logger)

	hooks.OnFanIn(context.Background(), &domain.FanEvent{Node: "section_formatter", Targets: []string{"x"}, Failures: 1})
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "failures=1")
}
