package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. It satisfies both
// portfolio.StageObserver and data.FetchObserver.
type Metrics struct {
	reg *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	runs          *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontier_stage_duration_seconds",
			Help:    "Time spent in each analytics pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"stage"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_stage_failures_total",
			Help: "Pipeline stages that returned an error",
		}, []string{"stage"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_fetch_total",
			Help: "Price history fetches by source and outcome",
		}, []string{"source", "outcome"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontier_fetch_duration_seconds",
			Help:    "Latency of price history fetches",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_runs_total",
			Help: "Completed analytics runs by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// ObserveStage records a pipeline stage duration and counts its failures.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveFetch records one price fetch by source and outcome.
func (m *Metrics) ObserveFetch(source, outcome string, elapsed time.Duration) {
	m.fetches.WithLabelValues(source, outcome).Inc()
	m.fetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ObserveRun counts a finished run; result is "ok" or an error kind.
func (m *Metrics) ObserveRun(result string) {
	m.runs.WithLabelValues(result).Inc()
}

// ObserveRequest counts an HTTP request by route template and status.
func (m *Metrics) ObserveRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
