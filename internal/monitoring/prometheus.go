// Package monitoring provides Prometheus self-monitoring for SENTINEL-CORE.
//
// SetupPrometheusMetrics mounts the /metrics endpoint on the Gin router; the
// Record* helpers are called from the storage gateway, cache, pipeline and
// response engine to keep counter bookkeeping out of business code.
package monitoring

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_core_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_events_processed_total",
			Help: "Telemetry events run through the detection pipeline",
		},
		[]string{"type", "severity"},
	)

	IncidentsOpenedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_incidents_opened_total",
			Help: "Incidents materialized from detections",
		},
		[]string{"threat_type", "severity"},
	)

	DetectorHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_detector_hits_total",
			Help: "Rule detector positive outcomes",
		},
		[]string{"detector"},
	)

	MLPredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_ml_predictions_total",
			Help: "Anomaly model predictions by outcome",
		},
		[]string{"outcome"}, // flagged | normal | unloaded
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_ws_broadcasts_total",
			Help: "WebSocket broadcast messages by type",
		},
		[]string{"type"},
	)

	ActiveWebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_core_ws_connections_active",
			Help: "Currently connected WebSocket subscribers",
		},
	)

	ResponseActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_response_actions_total",
			Help: "Automated response actions by kind and status",
		},
		[]string{"action", "status"},
	)

	DBOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_db_operations_total",
			Help: "Store gateway operations",
		},
		[]string{"operation", "table", "status"},
	)

	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_cache_operations_total",
			Help: "Cache operations by result",
		},
		[]string{"operation", "result"},
	)

	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_core_auth_attempts_total",
			Help: "Authentication attempts by result",
		},
		[]string{"result"},
	)
)

// SetupPrometheusMetrics mounts the metrics endpoint.
func SetupPrometheusMetrics(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func RecordDBOperation(operation, table string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	DBOperationsTotal.WithLabelValues(operation, table, status).Inc()
}

func RecordCacheOperation(operation, result string) {
	CacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

func RecordAuthAttempt(result string) {
	AuthAttemptsTotal.WithLabelValues(result).Inc()
}
