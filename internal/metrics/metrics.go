package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns
// its registry, so constructing a second instance never collides with the
// first.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	WorkflowRuns      prometheus.Counter
	WorkflowSuccesses prometheus.Counter
	WorkflowFailures  prometheus.Counter
	WorkflowDuration  prometheus.Histogram
	StageDuration     *prometheus.HistogramVec
	StageOutcomes     *prometheus.CounterVec

	// Lead analytics
	LeadsFound     prometheus.Counter
	EmailsFound    prometheus.Counter
	LeadsValidated prometheus.Counter

	// Export metrics
	ExportsCreated *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		WorkflowRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "workflow_run_count",
			Help: "Number of workflow runs started",
		}),
		WorkflowSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "workflow_success_count",
			Help: "Number of successful workflow completions",
		}),
		WorkflowFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "workflow_failure_count",
			Help: "Number of failed workflow runs",
		}),
		WorkflowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "workflow_duration_seconds",
			Help:    "Workflow execution duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stage_execution_duration_seconds",
				Help:    "Execution duration of each pipeline stage in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"stage"},
		),
		StageOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stage_execution_count",
				Help: "Number of stage executions by outcome",
			},
			[]string{"stage", "outcome"}, // success, failure, degraded
		),

		LeadsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "leads_found_total",
			Help: "Total number of leads found",
		}),
		EmailsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "emails_found_total",
			Help: "Total number of email addresses discovered",
		}),
		LeadsValidated: factory.NewCounter(prometheus.CounterOpts{
			Name: "leads_validated_total",
			Help: "Total number of leads with a validation verdict",
		}),

		ExportsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exports_created_total",
				Help: "Total number of exports created",
			},
			[]string{"destination"}, // sheets, xlsx
		),
	}
}

// Handler exposes the registry for a /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records per-request HTTP metrics using the route pattern rather
// than the raw path, so path parameters do not explode label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// RecordRunStarted increments the workflow run counter.
func (m *Metrics) RecordRunStarted() {
	m.WorkflowRuns.Inc()
}

// RecordRunCompleted records a finished run's duration and outcome.
func (m *Metrics) RecordRunCompleted(duration time.Duration, success bool) {
	m.WorkflowDuration.Observe(duration.Seconds())
	if success {
		m.WorkflowSuccesses.Inc()
	} else {
		m.WorkflowFailures.Inc()
	}
}

// RecordStage records one stage execution.
func (m *Metrics) RecordStage(stage string, duration time.Duration, outcome string) {
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordCounts records the lead analytics of one finished run.
func (m *Metrics) RecordCounts(found, emailsFound, validated int) {
	m.LeadsFound.Add(float64(found))
	m.EmailsFound.Add(float64(emailsFound))
	m.LeadsValidated.Add(float64(validated))
}

// RecordExportCreated increments the export counter for a destination.
func (m *Metrics) RecordExportCreated(destination string) {
	m.ExportsCreated.WithLabelValues(destination).Inc()
}
