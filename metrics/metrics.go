package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesandbox_executions_total",
			Help: "Total number of sandbox executions",
		},
		[]string{"strategy", "status"},
	)

	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codesandbox_phase_duration_ms",
			Help:    "Pipeline phase duration in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"strategy", "phase"}, // phase: "compile", "run", "total"
	)

	PeakMemory = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codesandbox_peak_memory_bytes",
			Help:    "Peak memory per execution as measured by the strategy",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 8),
		},
		[]string{"strategy"},
	)

	CaseTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codesandbox_case_timeouts_total",
			Help: "Total number of test cases killed by the time budget",
		},
		[]string{"strategy"},
	)

	ContentViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codesandbox_content_violations_total",
			Help: "Total number of submissions rejected before execution",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codesandbox_queue_depth",
			Help: "Current number of jobs in the queue",
		},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codesandbox_active_workers",
			Help: "Number of workers currently processing jobs",
		},
	)

	ContainerSetupTime = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codesandbox_container_setup_ms",
			Help:    "Time to create and start a sandbox container",
			Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000},
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codesandbox_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)
