package assistant

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for assistant pipelines.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	DirectivesTotal    *prometheus.CounterVec
	RedirectsTotal     *prometheus.CounterVec
	CompletionDuration *prometheus.HistogramVec
	EventErrorsTotal   *prometheus.CounterVec
}

// NewMetrics returns the process-wide assistant metrics, registering them
// on first use.
//
// Metrics:
//   - assistant_requests_total{variant,outcome}
//   - assistant_directives_total{variant,kind}
//   - assistant_heuristic_redirects_total{variant,rule}
//   - assistant_completion_duration_seconds{variant}
//   - assistant_event_errors_total{variant}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_requests_total",
					Help: "Assistant requests by variant and outcome",
				},
				[]string{"variant", "outcome"},
			),
			DirectivesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_directives_total",
					Help: "Directive tags extracted from model replies",
				},
				[]string{"variant", "kind"},
			),
			RedirectsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_heuristic_redirects_total",
					Help: "Redirects chosen by keyword rules",
				},
				[]string{"variant", "rule"},
			),
			CompletionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "assistant_completion_duration_seconds",
					Help:    "Latency of completion provider calls",
					Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
				},
				[]string{"variant"},
			),
			EventErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assistant_event_errors_total",
					Help: "Event sink failures",
				},
				[]string{"variant"},
			),
		}
	})
	return globalMetrics
}
