package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Billing metrics
	QuotaChecksTotal         *prometheus.CounterVec
	SubscriptionTransitions  *prometheus.CounterVec
	TopUpsTotal              *prometheus.CounterVec
	ExpirySweepDuration      prometheus.Histogram
	ExpirySweepExpiredTotal  prometheus.Counter
	EntitlementCallDuration  *prometheus.HistogramVec
	EntitlementFailuresTotal prometheus.Counter

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "steyzi"
	}

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Billing metrics
		QuotaChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "quota_checks_total",
				Help:      "Total number of capacity checks",
			},
			[]string{"kind", "tier", "outcome"}, // outcome: allowed, denied, unlimited
		),
		SubscriptionTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "subscription_transitions_total",
				Help:      "Total number of subscription status transitions",
			},
			[]string{"to"},
		),
		TopUpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "topups_total",
				Help:      "Total number of confirmed entitlement top-ups",
			},
			[]string{"kind"},
		),
		ExpirySweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "expiry_sweep_duration_seconds",
				Help:      "Expiry sweep run duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60},
			},
		),
		ExpirySweepExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "billing",
				Name:      "expiry_sweep_expired_total",
				Help:      "Total number of subscriptions expired by the sweep",
			},
		),
		EntitlementCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "entitlement",
				Name:      "call_duration_seconds",
				Help:      "Outbound entitlement endpoint call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"}, // increase, cancel
		),
		EntitlementFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "entitlement",
				Name:      "failures_total",
				Help:      "Total number of failed entitlement endpoint calls",
			},
		),

		// Cache metrics
		CacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordQuotaCheck records a capacity check outcome.
func (m *Metrics) RecordQuotaCheck(kind, tier, outcome string) {
	m.QuotaChecksTotal.WithLabelValues(kind, tier, outcome).Inc()
}

// RecordTransition records a subscription status transition.
func (m *Metrics) RecordTransition(to string) {
	m.SubscriptionTransitions.WithLabelValues(to).Inc()
}

// RecordTopUp records a confirmed top-up.
func (m *Metrics) RecordTopUp(kind string) {
	m.TopUpsTotal.WithLabelValues(kind).Inc()
}

// RecordExpirySweep records an expiry sweep run.
func (m *Metrics) RecordExpirySweep(expired int, duration time.Duration) {
	m.ExpirySweepDuration.Observe(duration.Seconds())
	m.ExpirySweepExpiredTotal.Add(float64(expired))
}

// RecordEntitlementCall records an outbound entitlement endpoint call.
func (m *Metrics) RecordEntitlementCall(operation string, duration time.Duration, err error) {
	m.EntitlementCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.EntitlementFailuresTotal.Inc()
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
