package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Provisioning metrics
	pollCyclesTotal      prometheus.Counter
	pollCycleDuration    prometheus.Histogram
	sshConnectsTotal     *prometheus.CounterVec
	activeSSHConnections prometheus.Gauge
	configOpsTotal       *prometheus.CounterVec
	configOpDuration     *prometheus.HistogramVec
	credentialAttempts   *prometheus.CounterVec

	// Fleet metrics
	switchesDiscovered prometheus.Gauge
	switchesConfigured prometheus.Gauge
	apsDiscovered      prometheus.Gauge

	// Database metrics
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge

	// System metrics
	uptime    prometheus.Gauge
	startTime time.Time

	logger *zap.Logger
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icxcommander_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "icxcommander_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		pollCyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icxcommander_poll_cycles_total",
			Help: "Total number of completed provisioning poll cycles",
		}),
		pollCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "icxcommander_poll_cycle_duration_seconds",
			Help:    "Provisioning poll cycle duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		sshConnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icxcommander_ssh_connects_total",
				Help: "Total number of SSH connection attempts",
			},
			[]string{"result"},
		),
		activeSSHConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_ssh_connections_active",
			Help: "Number of SSH sessions currently open",
		}),
		configOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icxcommander_config_operations_total",
				Help: "Total number of configuration operations",
			},
			[]string{"operation", "status"},
		),
		configOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "icxcommander_config_operation_duration_seconds",
				Help:    "Configuration operation duration in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		credentialAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "icxcommander_credential_attempts_total",
				Help: "Total number of credential-cycling attempts",
			},
			[]string{"result"},
		),

		switchesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_switches_discovered",
			Help: "Number of switches in inventory",
		}),
		switchesConfigured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_switches_configured",
			Help: "Number of fully configured switches",
		}),
		apsDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_aps_discovered",
			Help: "Number of access points in inventory",
		}),

		dbConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_db_connections_active",
			Help: "Number of active database connections",
		}),
		dbConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_db_connections_idle",
			Help: "Number of idle database connections",
		}),

		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icxcommander_uptime_seconds",
			Help: "Application uptime in seconds",
		}),
		startTime: time.Now(),
		logger:    logger,
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.pollCyclesTotal,
		m.pollCycleDuration,
		m.sshConnectsTotal,
		m.activeSSHConnections,
		m.configOpsTotal,
		m.configOpDuration,
		m.credentialAttempts,
		m.switchesDiscovered,
		m.switchesConfigured,
		m.apsDiscovered,
		m.dbConnectionsActive,
		m.dbConnectionsIdle,
		m.uptime,
	)

	logger.Info("Prometheus metrics initialized")
	return m
}

// HTTPMiddleware returns a Gin middleware for collecting HTTP metrics
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration.Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// RecordPollCycle records a completed provisioning pass
func (m *Metrics) RecordPollCycle(duration time.Duration) {
	m.pollCyclesTotal.Inc()
	m.pollCycleDuration.Observe(duration.Seconds())
}

// RecordSSHConnect records one connection attempt by result
func (m *Metrics) RecordSSHConnect(result string) {
	m.sshConnectsTotal.WithLabelValues(result).Inc()
}

// SSHSessionOpened and SSHSessionClosed track the active session gauge
func (m *Metrics) SSHSessionOpened() { m.activeSSHConnections.Inc() }

// SSHSessionClosed decrements the active session gauge
func (m *Metrics) SSHSessionClosed() { m.activeSSHConnections.Dec() }

// RecordConfigOperation records a configuration operation outcome
func (m *Metrics) RecordConfigOperation(operation, status string, duration time.Duration) {
	m.configOpsTotal.WithLabelValues(operation, status).Inc()
	m.configOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCredentialAttempt records one credential-cycling attempt
func (m *Metrics) RecordCredentialAttempt(result string) {
	m.credentialAttempts.WithLabelValues(result).Inc()
}

// SetFleetCounts updates the fleet gauges
func (m *Metrics) SetFleetCounts(discovered, configured, aps int) {
	m.switchesDiscovered.Set(float64(discovered))
	m.switchesConfigured.Set(float64(configured))
	m.apsDiscovered.Set(float64(aps))
}

// UpdateDatabaseStats updates database connection metrics
func (m *Metrics) UpdateDatabaseStats(stats sql.DBStats) {
	m.dbConnectionsActive.Set(float64(stats.InUse))
	m.dbConnectionsIdle.Set(float64(stats.Idle))
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsCollection starts collecting metrics in the background
func (m *Metrics) StartMetricsCollection(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping metrics collection")
			return
		case <-ticker.C:
			m.uptime.Set(time.Since(m.startTime).Seconds())
			if db != nil {
				m.UpdateDatabaseStats(db.Stats())
			}
		}
	}
}
