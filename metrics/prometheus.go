package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acryldata/datahub-monitors/core"
)

// Recorder exposes the service's operational counters as Prometheus
// metrics over its own registry.
type Recorder struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	refreshes   *prometheus.CounterVec
	scheduled   prometheus.Gauge
	queueDrops  prometheus.Counter
}

func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitors_assertion_evaluations_total",
			Help: "Assertion evaluations by assertion type and outcome.",
		}, []string{"assertion_type", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitors_refreshes_total",
			Help: "Monitor reconciliation passes by status.",
		}, []string{"status"}),
		scheduled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitors_scheduled_assertions",
			Help: "Number of assertions currently scheduled.",
		}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitors_evaluation_queue_drops_total",
			Help: "Evaluations dropped because the worker queue was full.",
		}),
	}
	registry.MustRegister(
		r.evaluations,
		r.refreshes,
		r.scheduled,
		r.queueDrops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var _ core.MetricsRecorder = (*Recorder)(nil)

func (r *Recorder) RecordEvaluation(assertionType core.AssertionType, result string) {
	r.evaluations.WithLabelValues(string(assertionType), result).Inc()
}

func (r *Recorder) RecordRefresh(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	r.refreshes.WithLabelValues(status).Inc()
}

func (r *Recorder) SetScheduledAssertions(n int) {
	r.scheduled.Set(float64(n))
}

func (r *Recorder) RecordQueueDrop() {
	r.queueDrops.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
