package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingComputeTotal counts bill total computations by bill kind and source
	// (preview, submission, report).
	PricingComputeTotal *prometheus.CounterVec
	// BillMutationsTotal counts bill and payment writes by kind and operation.
	BillMutationsTotal *prometheus.CounterVec
	// ReportCacheTotal counts read-model cache lookups by result.
	ReportCacheTotal *prometheus.CounterVec
	// GSTRefreshDuration records background GST refresh latency in milliseconds.
	GSTRefreshDuration prometheus.Histogram
	// RateLimitDecisions counts rate limit outcomes by scope (allowed, limited, error).
	RateLimitDecisions *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers billing Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingComputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_compute_total",
			Help:      "Count of bill total computations by bill kind and source.",
		}, []string{"kind", "source"})
		BillMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bill_mutations_total",
			Help:      "Count of bill and payment mutations by kind and operation.",
		}, []string{"kind", "op"})
		ReportCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_total",
			Help:      "Count of read-model cache lookups by result.",
		}, []string{"result"})
		GSTRefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gst_refresh_duration_ms",
			Help:      "Latency of background GST liability refreshes in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		RateLimitDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Count of rate limit decisions by scope and result.",
		}, []string{"scope", "result"})

		PricingComputeTotal = registerOrReuse(reg, PricingComputeTotal)
		BillMutationsTotal = registerOrReuse(reg, BillMutationsTotal)
		ReportCacheTotal = registerOrReuse(reg, ReportCacheTotal)
		GSTRefreshDuration = registerOrReuse(reg, GSTRefreshDuration)
		RateLimitDecisions = registerOrReuse(reg, RateLimitDecisions)
	})
}

// CountPricing records a computation when domain metrics are registered. An
// empty kind is recorded as "all".
func CountPricing(kind, source string) {
	if kind == "" {
		kind = "all"
	}
	if PricingComputeTotal != nil {
		PricingComputeTotal.WithLabelValues(kind, source).Inc()
	}
}

// CountBillMutation records a bill write when domain metrics are registered.
func CountBillMutation(kind, op string) {
	if BillMutationsTotal != nil {
		BillMutationsTotal.WithLabelValues(kind, op).Inc()
	}
}

// CountReportCache records a cache lookup outcome (hit, miss, error).
func CountReportCache(result string) {
	if ReportCacheTotal != nil {
		ReportCacheTotal.WithLabelValues(result).Inc()
	}
}

// CountRateLimit records a limiter decision.
func CountRateLimit(scope, result string) {
	if RateLimitDecisions != nil {
		RateLimitDecisions.WithLabelValues(scope, result).Inc()
	}
}
