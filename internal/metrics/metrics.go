// Package metrics exposes Prometheus collectors for runs, scenarios and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "allocator_"

// Scenario status label values
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Metrics holds the allocator's collectors. A nil *Metrics records nothing.
type Metrics struct {
	scenariosTotal  *prometheus.CounterVec
	solverDuration  *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	modelCacheTotal *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		scenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "scenarios_total",
			Help: "Scenarios solved, by outcome.",
		}, []string{"status"}),
		solverDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "solver_duration_seconds",
			Help:    "Time spent solving one scenario.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"status"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "runs_total",
			Help: "Scenario batches executed, by trigger and outcome.",
		}, []string{"trigger", "status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "run_duration_seconds",
			Help:    "Wall time of a whole run including reports.",
			Buckets: prometheus.DefBuckets,
		}),
		modelCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "model_cache_total",
			Help: "Return model cache lookups, by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "http_requests_total",
			Help: "HTTP requests served, by method and status code.",
		}, []string{"method", "code"}),
	}

	collectors := []prometheus.Collector{
		m.scenariosTotal,
		m.solverDuration,
		m.runsTotal,
		m.runDuration,
		m.modelCacheTotal,
		m.httpRequests,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveScenario records one finished scenario.
func (m *Metrics) ObserveScenario(succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusSucceeded
	if !succeeded {
		status = StatusFailed
	}
	m.scenariosTotal.WithLabelValues(status).Inc()
	m.solverDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(trigger string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusSucceeded
	if err != nil {
		status = StatusFailed
	}
	m.runsTotal.WithLabelValues(trigger, status).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ObserveModelCache records a cache hit or miss.
func (m *Metrics) ObserveModelCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.modelCacheTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records one served request.
func (m *Metrics) ObserveHTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
