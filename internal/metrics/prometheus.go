// Package metrics exposes Prometheus counters for provider calls, syncs and
// the HTTP API.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Provider metrics
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_provider_calls_total",
			Help: "Total number of logical provider calls",
		},
		[]string{"function", "status"}, // status: success|error|rate_limited|stale
	)

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "earnings_provider_latency_seconds",
			Help:    "Provider call latency in seconds, including gate waits and cooldowns",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"function"},
	)

	ProviderCooldowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "earnings_provider_cooldowns_total",
			Help: "Cooldowns taken after in-band rate-limit markers",
		},
	)

	QuotaCircuitTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "earnings_quota_circuit_trips_total",
			Help: "Times the provider quota circuit opened",
		},
	)

	// Sync metrics
	SymbolSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_symbol_syncs_total",
			Help: "Per-symbol refresh outcomes",
		},
		[]string{"status"}, // status: synced|cached|fresh|failed
	)

	SyncRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "earnings_sync_run_duration_seconds",
			Help:    "Bulk sync duration in seconds",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// Alignment metrics
	AlignedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_aligned_events_total",
			Help: "Earnings events aligned to prices, by outcome",
		},
		[]string{"status"}, // status: complete|partial|missing
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnings_http_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"route", "code"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "earnings_http_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		// Provider metrics
		prometheus.MustRegister(ProviderCalls)
		prometheus.MustRegister(ProviderLatency)
		prometheus.MustRegister(ProviderCooldowns)
		prometheus.MustRegister(QuotaCircuitTrips)

		// Sync metrics
		prometheus.MustRegister(SymbolSyncs)
		prometheus.MustRegister(SyncRunDuration)
		prometheus.MustRegister(AlignedEvents)

		// HTTP metrics
		prometheus.MustRegister(HTTPRequests)
		prometheus.MustRegister(HTTPDuration)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProviderCall records one logical provider call.
func RecordProviderCall(function, status string, latency time.Duration) {
	ProviderCalls.WithLabelValues(function, status).Inc()
	ProviderLatency.WithLabelValues(function).Observe(latency.Seconds())
}

// RecordAlignment records alignment outcome counts.
func RecordAlignment(complete, partial, missing int) {
	AlignedEvents.WithLabelValues("complete").Add(float64(complete))
	AlignedEvents.WithLabelValues("partial").Add(float64(partial))
	AlignedEvents.WithLabelValues("missing").Add(float64(missing))
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(route, code string, duration time.Duration) {
	HTTPRequests.WithLabelValues(route, code).Inc()
	HTTPDuration.WithLabelValues(route).Observe(duration.Seconds())
}
