package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Admin form workflow metrics
	// ============================================
	FormSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_form_submissions_total",
			Help: "Total number of admin form submissions",
		},
		[]string{"entity", "method", "outcome"},
	)

	FormValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_form_validation_failures_total",
			Help: "Total number of form submissions rejected by validation",
		},
		[]string{"entity", "field"},
	)

	TransientsStashed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admin_transients_stashed_total",
		Help: "Total number of failed payloads stashed in the transient store",
	})

	TransientsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "admin_transients_cleared_total",
		Help: "Total number of transient entries cleared after successful resubmission",
	})

	// ============================================
	// Sync dispatch metrics
	// ============================================
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operations_total",
			Help: "Total number of push/pull sync operations",
		},
		[]string{"direction", "status"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_operation_duration_seconds",
			Help:    "Sync operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	// ============================================
	// Database connection metrics
	// ============================================
	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_pool_size",
		Help: "Database connection pool size",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_active",
		Help: "Number of active database connections",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_idle",
		Help: "Number of idle database connections",
	})

	// ============================================
	// NATS publication metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_published_total",
			Help: "Total number of sync events published to NATS",
		},
		[]string{"subject"},
	)

	// ============================================
	// Activity feed metrics
	// ============================================
	ActivityFeedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_activity_feed_sessions",
		Help: "Number of connected admin activity feed WebSocket sessions",
	})
)
