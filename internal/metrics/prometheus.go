package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExecutionsTotal counts sandbox executions by language and outcome
	// (ok, runtime_error, timeout, memory_exceeded, compile_error, internal_error).
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_executions_total",
			Help: "Total number of sandboxed executions",
		},
		[]string{"language", "outcome"},
	)

	// CaseDuration tracks the reported run time of individual test cases in seconds.
	CaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_case_duration_seconds",
			Help:    "Run time of individual test cases in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"language"},
	)

	// CaseOutcomes counts per-case results by language and outcome tag.
	CaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_case_outcomes_total",
			Help: "Total number of graded test cases by outcome",
		},
		[]string{"language", "outcome"},
	)

	// Verdicts counts final verdicts by language and status.
	Verdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_verdicts_total",
			Help: "Total number of grading verdicts",
		},
		[]string{"language", "status"},
	)

	// GradingDuration tracks whole grading runs in seconds.
	GradingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_grading_duration_seconds",
			Help:    "Duration of complete grading runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"language"},
	)

	// SandboxInFlight tracks executions currently holding an admission slot.
	SandboxInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_sandbox_in_flight",
			Help: "Number of sandboxed executions currently running",
		},
	)

	// WorkersActive tracks the number of currently busy pool workers.
	WorkersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_workers_active",
			Help: "Number of currently active worker goroutines",
		},
	)

	// QueueJobs counts consumed grade jobs by result (graded, skipped, failed).
	QueueJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_queue_jobs_total",
			Help: "Total number of grade jobs consumed from the queue",
		},
		[]string{"result"},
	)

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// SandboxFailures counts sandbox infrastructure failures (not user code errors).
	SandboxFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_sandbox_failures_total",
			Help: "Total number of sandbox infrastructure failures",
		},
	)
)
