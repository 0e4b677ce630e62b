package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Operation lifecycle metrics
	OperationsStarted   *prometheus.CounterVec
	OperationsCompleted prometheus.Counter
	OperationsFailed    prometheus.Counter
	OperationDuration   prometheus.Histogram

	// Language model metrics
	LLMRequests       *prometheus.CounterVec
	LLMErrors         *prometheus.CounterVec
	LLMRequestLatency prometheus.Histogram

	// Scheduler metrics
	SchedulerScans         prometheus.Counter
	SchedulerUsersEnqueued prometheus.Counter
	SchedulerUsersSkipped  *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	metrics := &Metrics{
		OperationsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reflecta_operations_started_total",
			Help: "Total number of operations created, by trigger type",
		}, []string{"trigger"}),

		OperationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflecta_operations_completed_total",
			Help: "Total number of operations that reached completed",
		}),

		OperationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflecta_operations_failed_total",
			Help: "Total number of operations that reached failed",
		}),

		OperationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reflecta_operation_duration_seconds",
			Help:    "End-to-end duration of dispatched operations",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300}, // two LLM calls can take minutes
		}),

		LLMRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reflecta_llm_requests_total",
			Help: "Total number of language model requests, by purpose",
		}, []string{"purpose"}),

		LLMErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reflecta_llm_errors_total",
			Help: "Total number of language model failures, by purpose",
		}, []string{"purpose"}),

		LLMRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reflecta_llm_request_duration_seconds",
			Help:    "Language model request latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),

		SchedulerScans: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflecta_scheduler_scans_total",
			Help: "Total number of hourly scheduler scans",
		}),

		SchedulerUsersEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reflecta_scheduler_users_enqueued_total",
			Help: "Total number of users enqueued for automatic generation",
		}),

		SchedulerUsersSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reflecta_scheduler_users_skipped_total",
			Help: "Total number of scanned users not enqueued, by reason",
		}, []string{"reason"}), // "not_due", "already_covered", "bad_timezone"
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance (nil before InitMetrics).
func GetMetrics() *Metrics {
	return globalMetrics
}
