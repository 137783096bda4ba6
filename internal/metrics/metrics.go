// Package metrics provides Prometheus instrumentation for the Warden platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsIngestedTotal counts accepted behavioral events by modality.
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "events_ingested_total",
			Help:      "Total behavioral events accepted, by modality.",
		},
		[]string{"modality"},
	)

	// EventsRejectedTotal counts events rejected at validation.
	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "events_rejected_total",
			Help:      "Total behavioral events rejected at validation, by modality.",
		},
		[]string{"modality"},
	)

	// RiskScoreObserved tracks the distribution of composite risk scores.
	RiskScoreObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "warden",
			Name:      "risk_score",
			Help:      "Composite risk score per assessment.",
			Buckets:   []float64{5, 10, 25, 50, 70, 75, 80, 90, 95, 100},
		},
	)

	// AnomaliesTotal counts samples flagged as point anomalies.
	AnomaliesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "anomalies_total",
		Help:      "Total risk samples classified as point anomalies.",
	})

	// DriftDetectedTotal counts assessments where drift was present.
	DriftDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "drift_detected_total",
		Help:      "Total assessments with the drift flag set.",
	})

	// PatternsBlockedTotal counts pattern signatures moved to the blocked set.
	PatternsBlockedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "patterns_blocked_total",
		Help:      "Total pattern signatures newly blocked.",
	})

	// ForensicRecordsTotal counts persisted forensic captures by reason.
	ForensicRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "forensic_records_total",
			Help:      "Total forensic records persisted, by capture reason.",
		},
		[]string{"reason"},
	)

	// ActiveSessions tracks the number of live behavioral sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "active_sessions",
			Help:      "Number of currently live behavioral sessions.",
		},
	)

	// SessionsArchivedTotal counts archived sessions by reason.
	SessionsArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "warden",
			Name:      "sessions_archived_total",
			Help:      "Total sessions archived, by reason.",
		},
		[]string{"reason"},
	)

	// BlockedUsers tracks the number of currently block-listed users.
	BlockedUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "blocked_users",
			Help:      "Number of currently block-listed users.",
		},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "warden",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventsIngestedTotal,
		EventsRejectedTotal,
		RiskScoreObserved,
		AnomaliesTotal,
		DriftDetectedTotal,
		PatternsBlockedTotal,
		ForensicRecordsTotal,
		ActiveSessions,
		SessionsArchivedTotal,
		BlockedUsers,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
