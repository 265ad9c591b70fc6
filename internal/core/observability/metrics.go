package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	clipStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clip_stage_duration_seconds",
			Help:    "Duration of clip pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"stage"},
	)

	clipSelected = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clip_selected_polygons",
			Help:    "Number of polygons selected by the spatial index per clip.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	clipRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clip_runs_total",
			Help: "Clip runs by outcome.",
		},
		[]string{"outcome"},
	)

	indexBuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "index_build_seconds",
			Help:    "Time spent bulk loading spatial indexes.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	cacheResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Clip result cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	invalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events processed by op and result.",
		},
		[]string{"op", "result"},
	)

	invalidationKeysDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invalidation_keys_deleted_total",
			Help: "Cache keys deleted by invalidation events.",
		},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clip_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		clipStageSeconds, clipSelected, clipRuns, indexBuildSeconds,
		cacheResults, cacheOpSeconds,
		invalidationEvents, invalidationKeysDeleted,
		buildInfo,
	}
}

// Init registers the service collectors on reg. Observers work regardless;
// unregistered collectors are simply never scraped.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveClipStage(stage string, durationSeconds float64) {
	clipStageSeconds.WithLabelValues(stage).Observe(durationSeconds)
}

func ObserveSelected(n int) {
	clipSelected.Observe(float64(n))
}

// ObserveClipRun counts a finished clip; outcome is an error kind label
// ("ok", "no_overlap", ...).
func ObserveClipRun(outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	clipRuns.WithLabelValues(outcome).Inc()
}

func ObserveIndexBuild(durationSeconds float64) {
	indexBuildSeconds.Observe(durationSeconds)
}

func IncCacheResult(tier, outcome string) {
	cacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	cacheOpSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func IncInvalidationEvent(op, result string) {
	invalidationEvents.WithLabelValues(op, result).Inc()
}

func AddInvalidatedKeys(n int) {
	if n > 0 {
		invalidationKeysDeleted.Add(float64(n))
	}
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
