// Package metrics exposes execution statistics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/code-runner/internal/executor"
)

// Collector records engine and workspace events. It implements
// executor.Observer, and ReleaseFailed fits workspace.ReleaseHook.
type Collector struct {
	executions      *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	cleanupFailures prometheus.Counter
}

var _ executor.Observer = (*Collector)(nil)

// New registers the collector's metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderunner_executions_total",
				Help: "Total number of code executions by outcome",
			},
			[]string{"language", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderunner_step_duration_ms",
				Help:    "Duration of pipeline steps in milliseconds",
				Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
			},
			[]string{"language", "step"}, // step: "compile", "run", "total"
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "coderunner_executions_in_flight",
				Help: "Number of executions currently holding a workspace",
			},
		),
		cleanupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "coderunner_cleanup_failures_total",
				Help: "Total number of workspace files that could not be removed",
			},
		),
	}
}

func (c *Collector) ExecutionStarted(string) {
	c.inFlight.Inc()
}

func (c *Collector) ExecutionFinished(language, outcome string, total time.Duration) {
	c.inFlight.Dec()
	c.executions.WithLabelValues(language, outcome).Inc()
	c.duration.WithLabelValues(language, "total").Observe(float64(total.Milliseconds()))
}

func (c *Collector) StepFinished(language, step string, elapsed time.Duration, _ bool) {
	c.duration.WithLabelValues(language, step).Observe(float64(elapsed.Milliseconds()))
}

// ReleaseFailed counts a workspace path that could not be removed.
func (c *Collector) ReleaseFailed(string, error) {
	c.cleanupFailures.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
