// Package metrics provides Prometheus collectors for the crawl pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace is the namespace for all application metrics.
const MetricsNamespace = "bookwatch"

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and turns
// every helper into a no-op, so tests can pass nil instead of a registry.
type Metrics struct {
	// Fetch metrics
	FetchRequestsTotal   *prometheus.CounterVec
	FetchRetriesTotal    prometheus.Counter
	FetchDurationSeconds prometheus.Histogram

	// Circuit breaker metrics
	BreakerState            prometheus.Gauge
	BreakerTransitionsTotal *prometheus.CounterVec

	// Crawl metrics
	CrawlTasksTotal      *prometheus.CounterVec
	CrawlBooksTotal      prometheus.Counter
	CrawlDurationSeconds prometheus.Histogram

	// Scheduler metrics
	SchedulerExecutionsTotal *prometheus.CounterVec
	SchedulerActiveJobs      prometheus.Gauge
}

// NewMetrics creates and registers all collectors against reg. A nil reg
// falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initFetchMetrics(factory)
	m.initBreakerMetrics(factory)
	m.initCrawlMetrics(factory)
	m.initSchedulerMetrics(factory)

	return m
}

// initFetchMetrics initializes HTTP fetch metrics.
func (m *Metrics) initFetchMetrics(factory promauto.Factory) {
	m.FetchRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Total fetch attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.FetchRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total fetch retries",
		},
	)

	m.FetchDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "fetch",
			Name:      "request_duration_seconds",
			Help:      "Duration of fetch attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
}

// initBreakerMetrics initializes circuit breaker metrics.
func (m *Metrics) initBreakerMetrics(factory promauto.Factory) {
	m.BreakerState = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	m.BreakerTransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)
}

// initCrawlMetrics initializes crawl task metrics.
func (m *Metrics) initCrawlMetrics(factory promauto.Factory) {
	m.CrawlTasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "crawl",
			Name:      "tasks_total",
			Help:      "Total crawl task runs by result",
		},
		[]string{"result"},
	)

	m.CrawlBooksTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "crawl",
			Name:      "books_total",
			Help:      "Total book snapshots persisted",
		},
	)

	m.CrawlDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: "crawl",
			Name:      "duration_seconds",
			Help:      "Duration of crawl task runs in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
}

// initSchedulerMetrics initializes scheduler metrics.
func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.SchedulerExecutionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: "scheduler",
			Name:      "executions_total",
			Help:      "Total job executions by status",
		},
		[]string{"status"},
	)

	m.SchedulerActiveJobs = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: "scheduler",
			Name:      "active_executions",
			Help:      "Job executions currently in flight",
		},
	)
}

// ObserveFetch records one concluded fetch attempt.
func (m *Metrics) ObserveFetch(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequestsTotal.WithLabelValues(outcome).Inc()
	m.FetchDurationSeconds.Observe(duration.Seconds())
}

// IncFetchRetry records one fetch retry.
func (m *Metrics) IncFetchRetry() {
	if m == nil {
		return
	}
	m.FetchRetriesTotal.Inc()
}

// SetBreakerState records the breaker's current state.
func (m *Metrics) SetBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BreakerState.Set(state)
}

// IncBreakerTransition records one breaker state transition.
func (m *Metrics) IncBreakerTransition(from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitionsTotal.WithLabelValues(from, to).Inc()
}

// ObserveCrawl records one finished crawl task.
func (m *Metrics) ObserveCrawl(result string, books int, duration time.Duration) {
	if m == nil {
		return
	}
	m.CrawlTasksTotal.WithLabelValues(result).Inc()
	m.CrawlBooksTotal.Add(float64(books))
	m.CrawlDurationSeconds.Observe(duration.Seconds())
}

// IncExecution records one job execution outcome.
func (m *Metrics) IncExecution(status string) {
	if m == nil {
		return
	}
	m.SchedulerExecutionsTotal.WithLabelValues(status).Inc()
}

// ExecutionStarted marks a job execution in flight.
func (m *Metrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.SchedulerActiveJobs.Inc()
}

// ExecutionFinished marks a job execution concluded.
func (m *Metrics) ExecutionFinished() {
	if m == nil {
		return
	}
	m.SchedulerActiveJobs.Dec()
}
