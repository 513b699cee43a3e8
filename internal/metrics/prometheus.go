package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the leaderboard service
type PrometheusMetrics struct {
	// Mutation metrics
	MutationsTotal   *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	AuditLogEntries  prometheus.Gauge

	// Broadcast metrics
	BroadcastEventsTotal    *prometheus.CounterVec
	SubscribersConnected    *prometheus.GaugeVec
	SubscribersDroppedTotal *prometheus.CounterVec
	WebhookDeliveriesTotal  *prometheus.CounterVec
	WebhookDeliveryDuration prometheus.Histogram

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DatabaseConnections       prometheus.Gauge

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LoginAttemptsTotal  *prometheus.CounterVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Mutation metrics
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_mutations_total",
				Help: "Total number of leaderboard mutations by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		MutationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leaderboard_mutation_duration_seconds",
				Help:    "Time spent committing a mutation including broadcast",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		AuditLogEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_audit_log_entries",
				Help: "Number of deleted-entry snapshots held in memory",
			},
		),

		// Broadcast metrics
		BroadcastEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_broadcast_events_total",
				Help: "Total number of events published to the broadcast hub",
			},
			[]string{"event"},
		),

		SubscribersConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leaderboard_subscribers_connected",
				Help: "Number of currently connected real-time subscribers",
			},
			[]string{"transport"},
		),

		SubscribersDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_subscribers_dropped_total",
				Help: "Total number of subscribers dropped because their queue was full",
			},
			[]string{"transport"},
		),

		WebhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_webhook_deliveries_total",
				Help: "Total number of webhook deliveries by outcome",
			},
			[]string{"status"},
		),

		WebhookDeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "leaderboard_webhook_delivery_duration_seconds",
				Help:    "Duration of webhook deliveries including retries",
				Buckets: prometheus.DefBuckets,
			},
		),

		// Storage metrics
		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leaderboard_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DatabaseConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_database_connections",
				Help: "Number of open database connections",
			},
		),

		// API metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leaderboard_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		LoginAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leaderboard_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),

		// Application health metrics
		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "leaderboard_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "leaderboard_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// registerRuntimeCollectors adds the standard process and Go collectors
func registerRuntimeCollectors(reg prometheus.Registerer) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RecordMutation records a committed or failed mutation
func (m *PrometheusMetrics) RecordMutation(operation, status string, duration time.Duration) {
	m.MutationsTotal.WithLabelValues(operation, status).Inc()
	m.MutationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateAuditLogEntries updates the audit log size metric
func (m *PrometheusMetrics) UpdateAuditLogEntries(count int) {
	m.AuditLogEntries.Set(float64(count))
}

// RecordBroadcastEvent records a published event
func (m *PrometheusMetrics) RecordBroadcastEvent(event string) {
	m.BroadcastEventsTotal.WithLabelValues(event).Inc()
}

// SubscriberConnected increments the connected gauge for a transport
func (m *PrometheusMetrics) SubscriberConnected(transport string) {
	m.SubscribersConnected.WithLabelValues(transport).Inc()
}

// SubscriberDisconnected decrements the connected gauge for a transport
func (m *PrometheusMetrics) SubscriberDisconnected(transport string) {
	m.SubscribersConnected.WithLabelValues(transport).Dec()
}

// RecordSubscriberDropped records a subscriber dropped for falling behind
func (m *PrometheusMetrics) RecordSubscriberDropped(transport string) {
	m.SubscribersDroppedTotal.WithLabelValues(transport).Inc()
}

// RecordWebhookDelivery records a webhook delivery outcome
func (m *PrometheusMetrics) RecordWebhookDelivery(status string, duration time.Duration) {
	m.WebhookDeliveriesTotal.WithLabelValues(status).Inc()
	m.WebhookDeliveryDuration.Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func (m *PrometheusMetrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLoginAttempt records a login outcome (success, invalid, limited)
func (m *PrometheusMetrics) RecordLoginAttempt(outcome string) {
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
