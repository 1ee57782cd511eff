// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Tracker task execution (duration, failures, skips)
// - Game API fetches and snapshot integrity rejections
// - Database query performance (DuckDB)
// - Discord notification delivery
// - Circuit breaker state

var (
	// Task Metrics
	TaskRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_task_runs_total",
			Help: "Total number of tracker task executions",
		},
		[]string{"task", "result"}, // result: "success", "failure", "panic"
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_task_duration_seconds",
			Help:    "Duration of tracker task executions in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task"},
	)

	TaskLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_task_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per task",
		},
		[]string{"task"},
	)

	// Fetch Metrics
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_fetches_total",
			Help: "Total number of upstream API fetches",
		},
		[]string{"endpoint", "result"}, // result: "success", "failure", "rejected"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_fetch_duration_seconds",
			Help:    "Duration of upstream API fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_fetch_retries_total",
			Help: "Total number of rate-limited fetch retries",
		},
		[]string{"endpoint"},
	)

	SnapshotsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshots_rejected_total",
			Help: "Total number of snapshots rejected by integrity checks",
		},
		[]string{"task", "reason"}, // reason: "stale", "regressed"
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Event Metrics
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_events_emitted_total",
			Help: "Total number of tracking events emitted by diff engines",
		},
		[]string{"event"}, // "war_start", "war_end", "territory_transfer", ...
	)

	// Notification Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification messages sent",
		},
		[]string{"type", "result"}, // result: "success", "failure", "gone"
	)

	NotificationsEdited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_edited_total",
			Help: "Total number of notification messages edited in place",
		},
		[]string{"type", "result"},
	)

	TracksExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracks_expired_total",
			Help: "Total number of tracking subscriptions removed by expiry",
		},
	)

	// Mojang Lookup Metrics
	UUIDLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uuid_lookups_total",
			Help: "Total number of player UUID lookups",
		},
		[]string{"result"}, // "resolved", "not_found", "failure", "cached"
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of operational API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Operational API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordTaskRun records a tracker task execution
func RecordTaskRun(task string, duration time.Duration, err error) {
	TaskDuration.WithLabelValues(task).Observe(duration.Seconds())
	if err != nil {
		TaskRunsTotal.WithLabelValues(task, "failure").Inc()
		return
	}
	TaskRunsTotal.WithLabelValues(task, "success").Inc()
	TaskLastSuccess.WithLabelValues(task).Set(float64(time.Now().Unix()))
}

// RecordTaskPanic records a recovered panic in a tracker task
func RecordTaskPanic(task string) {
	TaskRunsTotal.WithLabelValues(task, "panic").Inc()
}

// RecordFetch records an upstream API fetch
func RecordFetch(endpoint string, duration time.Duration, err error) {
	FetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if err != nil {
		FetchesTotal.WithLabelValues(endpoint, "failure").Inc()
	} else {
		FetchesTotal.WithLabelValues(endpoint, "success").Inc()
	}
}

// RecordSnapshotRejected records a snapshot discarded by an integrity check
func RecordSnapshotRejected(task, reason string) {
	SnapshotsRejected.WithLabelValues(task, reason).Inc()
}

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordEvent records a tracking event emitted by a diff engine
func RecordEvent(event string) {
	EventsEmitted.WithLabelValues(event).Inc()
}

// RecordNotification records an outbound notification send
func RecordNotification(trackType string, err error) {
	if err != nil {
		NotificationsSent.WithLabelValues(trackType, "failure").Inc()
		return
	}
	NotificationsSent.WithLabelValues(trackType, "success").Inc()
}

// RecordNotificationEdit records an in-place message edit
func RecordNotificationEdit(trackType string, err error) {
	if err != nil {
		NotificationsEdited.WithLabelValues(trackType, "failure").Inc()
		return
	}
	NotificationsEdited.WithLabelValues(trackType, "success").Inc()
}

// RecordAPIRequest records an operational API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
