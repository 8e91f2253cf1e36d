package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_validations_total",
			Help: "Total number of validations performed",
		},
		[]string{"validation_type"},
	)

	ValidationScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_validation_score",
			Help:    "Accuracy score of each validation",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"validation_type"},
	)

	ValidationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_validation_duration_seconds",
			Help:    "Validation processing duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"validation_type"},
	)

	PersistenceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_persistence_failures_total",
			Help: "Audit rows that failed to persist",
		},
		[]string{"table"},
	)

	CriticalSafetyEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_critical_safety_events_total",
			Help: "Critical safety events raised",
		},
		[]string{"risk_level"},
	)

	SafetyAlertsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_safety_alerts_total",
			Help: "Safety alert tasks processed",
		},
		[]string{"status"},
	)

	AIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_ai_requests_total",
			Help: "AI completion attempts per model",
		},
		[]string{"model", "status"},
	)

	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_ai_request_duration_seconds",
			Help:    "AI completion latency per model",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"function"},
	)

	DocumentsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_documents_extracted_total",
			Help: "Documents processed by text extraction",
		},
		[]string{"method"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ValidationsTotal)
		prometheus.MustRegister(ValidationScore)
		prometheus.MustRegister(ValidationDuration)
		prometheus.MustRegister(PersistenceFailures)
		prometheus.MustRegister(CriticalSafetyEvents)
		prometheus.MustRegister(SafetyAlertsDelivered)
		prometheus.MustRegister(AIRequests)
		prometheus.MustRegister(AIRequestDuration)
		prometheus.MustRegister(RateLimited)
		prometheus.MustRegister(DocumentsExtracted)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
