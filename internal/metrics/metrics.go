// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CoursesAssembled counts Assemble outcomes: "created", "existing", "failed".
	CoursesAssembled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_courses_assembled_total",
			Help: "Course assembly requests by outcome",
		},
		[]string{"outcome"},
	)

	// LessonsGenerated counts lessons persisted during assembly, by whether
	// content was generated ("ready") or deferred to hydration ("pending").
	LessonsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_lessons_generated_total",
			Help: "Lessons created during assembly by content state",
		},
		[]string{"state"},
	)

	// Hydrations counts EnsureHydrated calls that had to generate content.
	Hydrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_lesson_hydrations_total",
			Help: "Lazy lesson hydrations by result",
		},
		[]string{"result"},
	)

	// ProviderCalls counts upstream provider calls.
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_provider_calls_total",
			Help: "Calls to generation and search providers",
		},
		[]string{"provider", "result"},
	)

	// ProviderLatency tracks upstream provider latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_provider_call_duration_seconds",
			Help:    "Duration of provider calls in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coursegen_provider_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)
)
