package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	catalogFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "fetches_total",
			Help:      "Catalog fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "cache_events_total",
			Help:      "Catalog cache lookups by event kind.",
		},
		[]string{"event"},
	)

	aggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of full aggregation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 11), // 10ms to ~10s
		},
	)

	aggregationEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "aggregated_entries",
			Help:      "Entry count produced by the most recent aggregation run.",
		},
	)

	registryScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "registry",
			Name:      "scans_total",
			Help:      "Permanent registry scans by outcome.",
		},
		[]string{"outcome"},
	)

	broadcastMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "broadcast",
			Name:      "messages_total",
			Help:      "Live broadcast messages by direction and type.",
		},
		[]string{"direction", "type"},
	)
)

func init() {
	Registry.MustRegister(
		catalogFetches,
		cacheEvents,
		aggregationDuration,
		aggregationEntries,
		registryScans,
		broadcastMessages,
	)
}

// ObserveFetch records one catalog fetch outcome.
func ObserveFetch(outcome string) {
	catalogFetches.WithLabelValues(outcome).Inc()
}

// ObserveCacheEvent records one cache lookup event.
func ObserveCacheEvent(event string) {
	cacheEvents.WithLabelValues(event).Inc()
}

// ObserveAggregation records the duration and entry count of one run.
func ObserveAggregation(d time.Duration, entries int) {
	aggregationDuration.Observe(d.Seconds())
	aggregationEntries.Set(float64(entries))
}

// ObserveRegistryScan records one registry scan outcome.
func ObserveRegistryScan(outcome string) {
	registryScans.WithLabelValues(outcome).Inc()
}

// ObserveBroadcast records one broadcast message.
func ObserveBroadcast(direction, msgType string) {
	broadcastMessages.WithLabelValues(direction, msgType).Inc()
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
