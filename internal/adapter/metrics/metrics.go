package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/user/medrecord-proxy/internal/domain"
)

// ProxyMetrics holds all Prometheus metrics for the data-access proxy.
// All record methods tolerate a nil receiver so components can run without
// metrics in tests.
type ProxyMetrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	LimitViolations  *prometheus.CounterVec
	ResourceUsage    *prometheus.GaugeVec
	RateLimitedTotal *prometheus.CounterVec
}

// NewProxyMetrics initializes and registers the Prometheus metrics.
func NewProxyMetrics() *ProxyMetrics {
	return &ProxyMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord_proxy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of proxied requests by tenant, operation and status.",
		}, []string{"tenant_id", "operation", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medrecord_proxy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of proxied requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant_id", "operation"}),
		LimitViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord_proxy",
			Subsystem: "quota",
			Name:      "limit_violations_total",
			Help:      "Total number of quota admission rejections by dimension.",
		}, []string{"tenant_id", "limit_type"}),
		ResourceUsage: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medrecord_proxy",
			Subsystem: "quota",
			Name:      "tenant_resource_usage_percent",
			Help:      "Current tenant resource usage as a percentage of its limit.",
		}, []string{"tenant_id", "resource_type"}),
		RateLimitedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrecord_proxy",
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Total number of rate-limited requests by scope (ip or tenant).",
		}, []string{"scope"}),
	}
}

func (m *ProxyMetrics) RecordRequest(tenantID, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(tenantID, operation, status).Inc()
	m.RequestDuration.WithLabelValues(tenantID, operation).Observe(duration.Seconds())
}

func (m *ProxyMetrics) RecordLimitViolation(tenantID string, dim domain.QuotaDimension) {
	if m == nil {
		return
	}
	m.LimitViolations.WithLabelValues(tenantID, string(dim)).Inc()
}

func (m *ProxyMetrics) RecordResourceUsage(tenantID string, dim domain.QuotaDimension, percentage float64) {
	if m == nil {
		return
	}
	m.ResourceUsage.WithLabelValues(tenantID, string(dim)).Set(percentage)
}

func (m *ProxyMetrics) RecordRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}
