package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics represents the monitoring system
type Metrics struct {
	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	// Provider metrics
	providerRequestDuration *prometheus.HistogramVec
	providerRequestCount    *prometheus.CounterVec

	// Sync metrics
	assetsCreated   *prometheus.CounterVec
	syncFailures    *prometheus.CounterVec
	accountsSynced  prometheus.Counter
	pendingAccounts prometheus.Counter
}

// NewMetrics creates a new metrics collector
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"handler", "method", "status"},
		),

		requestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		providerRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Duration of aggregation provider API calls",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation", "status"},
		),

		providerRequestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Total number of aggregation provider API calls",
			},
			[]string{"operation", "status"},
		),

		assetsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_assets_created_total",
				Help:      "Asset rows created during reconciliation",
			},
			[]string{"asset_type"},
		),

		syncFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_item_failures_total",
				Help:      "Non-fatal per-item failures during sync",
			},
			[]string{"stage"},
		),

		accountsSynced: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_accounts_total",
				Help:      "Accounts processed during reconciliation",
			},
		),

		pendingAccounts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "holdings_pending_accounts_total",
				Help:      "Accounts reported as still syncing by the provider",
			},
		),
	}
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(handler, method string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"handler": handler,
		"method":  method,
		"status":  strconv.Itoa(status),
	}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestCount.With(labels).Inc()
}

// ObserveProviderRequest records one call to the aggregation provider.
func (m *Metrics) ObserveProviderRequest(operation string, status int, duration time.Duration) {
	labels := prometheus.Labels{
		"operation": operation,
		"status":    strconv.Itoa(status),
	}
	m.providerRequestDuration.With(labels).Observe(duration.Seconds())
	m.providerRequestCount.With(labels).Inc()
}

// IncAssetsCreated counts one asset row inserted during reconciliation.
func (m *Metrics) IncAssetsCreated(assetType string) {
	m.assetsCreated.WithLabelValues(assetType).Inc()
}

// IncSyncFailure counts one absorbed per-item failure.
func (m *Metrics) IncSyncFailure(stage string) {
	m.syncFailures.WithLabelValues(stage).Inc()
}

// IncAccountsSynced counts one account processed during reconciliation.
func (m *Metrics) IncAccountsSynced() {
	m.accountsSynced.Inc()
}

// IncPendingAccount counts one not-ready account seen on the read path.
func (m *Metrics) IncPendingAccount() {
	m.pendingAccounts.Inc()
}

// Handler exposes the prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
