package observability

import (
	"context"
	"net/http"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deepresearch"

// Metrics records engine activity as Prometheus collectors.
type Metrics struct {
	registry     *prometheus.Registry
	nodeVisits   *prometheus.CounterVec
	nodeErrors   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	retries      *prometheus.CounterVec
	fanOutSize   prometheus.Histogram
	childErrors  prometheus.Counter
	checkpoints  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node executions.",
		}, []string{"node", "depth"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Node executions that returned an error.",
		}, []string{"node"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"node"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retries scheduled after transient failures.",
		}, []string{"node"}),
		fanOutSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fanout_children",
			Help:      "Children dispatched per fan-out.",
			Buckets:   prometheus.LinearBuckets(1, 2, 8),
		}),
		childErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_child_failures_total",
			Help:      "Fan-out children that finished with an error tag.",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoints persisted, by run status.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		m.nodeVisits, m.nodeErrors, m.nodeDuration,
		m.retries, m.fanOutSize, m.childErrors, m.checkpoints,
	)
	return m
}

// Registry exposes the registry, e.g. for tests or to add process collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(e.Node, depthLabel(e.Depth)).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(e.Node).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.nodeErrors.WithLabelValues(e.Node).Inc()
			}
		},
		OnRetry: func(_ context.Context, e *domain.RetryEvent) {
			m.retries.WithLabelValues(e.Node).Inc()
		},
		OnFanOut: func(_ context.Context, e *domain.FanEvent) {
			m.fanOutSize.Observe(float64(len(e.Targets)))
		},
		OnFanIn: func(_ context.Context, e *domain.FanEvent) {
			m.childErrors.Add(float64(e.Failures))
		},
		OnCheckpoint: func(_ context.Context, e *domain.CheckpointEvent) {
			m.checkpoints.WithLabelValues(string(e.Status)).Inc()
		},
	}
}

func depthLabel(depth int) string {
	if depth == 0 {
		return "parent"
	}
	return "child"
}
