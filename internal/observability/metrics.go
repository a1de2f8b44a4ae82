package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_results_total",
			Help: "Tile cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_evictions_total",
			Help: "Eviction sweep outcomes.",
		},
		[]string{"outcome"},
	)

	cacheCostBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tile_cache_cost_bytes",
			Help: "Current total cost of resident cache entries.",
		},
	)

	fetchLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_fetch_latency_seconds",
			Help:    "Latency of upstream tile fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"status"},
	)

	tilesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tiles_decoded_total",
			Help: "Tiles decoded, by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	traversalOverflows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_traversal_overflows_total",
			Help: "Breadth-first traversals aborted on queue overflow.",
		},
	)

	httpLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of served HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		},
		[]string{"method", "route", "status"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func IncEviction()     { cacheEvictions.WithLabelValues("dropped").Inc() }
func IncEvictionVeto() { cacheEvictions.WithLabelValues("vetoed").Inc() }

func SetCacheCost(cost int64) { cacheCostBytes.Set(float64(cost)) }

func ObserveFetchLatency(status int, durationSeconds float64) {
	fetchLatencySeconds.WithLabelValues(strconv.Itoa(status)).Observe(durationSeconds)
}

// mode is "sync" or "thread"; outcome is "ok" or "error".
func IncTileDecoded(mode, outcome string) {
	tilesDecoded.WithLabelValues(mode, outcome).Inc()
}

func IncTraversalOverflow() { traversalOverflows.Inc() }

// route is the registered pattern, not the raw path, to bound cardinality.
func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	httpLatencySeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(durationSeconds)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
