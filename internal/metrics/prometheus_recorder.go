package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitepipe"

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	taskDuration  *prom.HistogramVec
	fileResults   *prom.CounterVec
	taskOutcomes  *prom.CounterVec
	reloadClients prom.Gauge
	watchTriggers *prom.CounterVec
}

// NewPrometheusRecorder creates the collectors and registers them on reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of category task runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"category"}),
		fileResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "file_results_total",
			Help:      "Per-file results by category",
		}, []string{"category", "result"}),
		taskOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Category run outcomes",
		}, []string{"category", "outcome"}),
		reloadClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "livereload_clients",
			Help:      "Connected live-reload clients",
		}),
		watchTriggers: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "watch_triggers_total",
			Help:      "Rebuilds triggered by the watcher, by debounce cause",
		}, []string{"category", "cause"}),
	}
	reg.MustRegister(pr.taskDuration, pr.fileResults, pr.taskOutcomes, pr.reloadClients, pr.watchTriggers)
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(category string, d time.Duration) {
	if p == nil {
		return
	}
	p.taskDuration.WithLabelValues(category).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFileResult(category string, result FileResult) {
	if p == nil {
		return
	}
	p.fileResults.WithLabelValues(category, string(result)).Inc()
}

func (p *PrometheusRecorder) IncTaskOutcome(category string, outcome TaskOutcome) {
	if p == nil {
		return
	}
	p.taskOutcomes.WithLabelValues(category, string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetLiveReloadClients(n int) {
	if p == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncWatchTrigger(category, cause string) {
	if p == nil {
		return
	}
	p.watchTriggers.WithLabelValues(category, cause).Inc()
}
