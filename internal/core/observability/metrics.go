// Package observability holds the prometheus collectors shared by the tile cache components.
package observability

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var component atomic.Value

func init() {
	component.Store("tilecache")
}

// SetComponent labels every sample with the running binary (seeder, replicator, invalidator).
func SetComponent(c string) {
	if c == "" {
		c = "tilecache"
	}
	component.Store(c)
}

func getComponent() string {
	if v := component.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "tilecache"
}

type collectors struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	upstreamLatency   *prometheus.HistogramVec
	upstreamErrors    *prometheus.CounterVec
	cacheOps          *prometheus.CounterVec
	cacheOpDuration   *prometheus.HistogramVec
	tileRefresh       *prometheus.CounterVec
	seedTiles         *prometheus.CounterVec
	replCycles        *prometheus.CounterVec
	replCycleDuration prometheus.Histogram
	replTiles         *prometheus.CounterVec
	replSkipped       *prometheus.CounterVec
	replSequence      prometheus.Gauge
	replLag           prometheus.Gauge
	buildInfo         *prometheus.GaugeVec
}

var current atomic.Pointer[collectors]

func newCollectors() *collectors {
	return &collectors{
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status", "component"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
			},
			[]string{"method", "route", "status", "component"},
		),
		upstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upstream_latency_seconds",
				Help:    "Latency of upstream calls in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
			[]string{"upstream", "component"},
		),
		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_errors_total",
				Help: "Failed upstream calls by upstream and kind.",
			},
			[]string{"upstream", "kind"},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_op_total",
				Help: "Store operations by op and result.",
			},
			[]string{"op", "result"},
		),
		cacheOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redis_operation_duration_seconds",
				Help:    "Duration of store operations in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		tileRefresh: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tile_refresh_total",
				Help: "Tile refreshes by result.",
			},
			[]string{"result", "component"},
		),
		seedTiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seed_tiles_total",
				Help: "Tiles processed by the region seeder, by result.",
			},
			[]string{"result"},
		),
		replCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_cycles_total",
				Help: "Replication cycles by outcome.",
			},
			[]string{"outcome"},
		),
		replCycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replication_cycle_duration_seconds",
				Help:    "Time from diff fetch to applied invalidation for one cycle.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		replTiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_tiles_total",
				Help: "Tiles touched by replication, by applied action and result.",
			},
			[]string{"action", "result"},
		),
		replSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_points_skipped_total",
				Help: "Touched points that could not be mapped to a tile.",
			},
			[]string{"reason"},
		),
		replSequence: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "replication_sequence_number",
				Help: "Last successfully applied replication sequence number.",
			},
		),
		replLag: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "replication_lag_seconds",
				Help: "Approximate lag: now - state.timestamp of the applied diff.",
			},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tilecache_build_info",
				Help: "Build information for the binary.",
			},
			[]string{"version", "component"},
		),
	}
}

// Init installs a fresh set of collectors. With enabled=false every observation is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled {
		current.Store(nil)
		return
	}
	c := newCollectors()
	if reg != nil {
		reg.MustRegister(
			c.httpRequests, c.httpDuration,
			c.upstreamLatency, c.upstreamErrors,
			c.cacheOps, c.cacheOpDuration,
			c.tileRefresh, c.seedTiles,
			c.replCycles, c.replCycleDuration, c.replTiles, c.replSkipped,
			c.replSequence, c.replLag,
			c.buildInfo,
		)
	}
	current.Store(c)
}

func get() *collectors { return current.Load() }

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	c := get()
	if c == nil {
		return
	}
	st := strconv.Itoa(status)
	comp := getComponent()
	c.httpRequests.WithLabelValues(method, route, st, comp).Inc()
	c.httpDuration.WithLabelValues(method, route, st, comp).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if c := get(); c != nil {
		c.upstreamLatency.WithLabelValues(upstream, getComponent()).Observe(durationSeconds)
	}
}

func IncUpstreamError(upstream, kind string) {
	if c := get(); c != nil {
		c.upstreamErrors.WithLabelValues(upstream, kind).Inc()
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	c := get()
	if c == nil {
		return
	}
	c.cacheOps.WithLabelValues(op, resultLabel(err)).Inc()
	c.cacheOpDuration.WithLabelValues(op).Observe(durationSeconds)
}

func ObserveRefresh(err error) {
	if c := get(); c != nil {
		c.tileRefresh.WithLabelValues(resultLabel(err), getComponent()).Inc()
	}
}

func ObserveSeedTile(err error) {
	if c := get(); c != nil {
		c.seedTiles.WithLabelValues(resultLabel(err)).Inc()
	}
}

// ObserveReplicationCycle records one cycle; outcome is "applied", "fetch_error",
// "decode_error", "apply_error" or "advance_error".
func ObserveReplicationCycle(outcome string, dur time.Duration) {
	c := get()
	if c == nil {
		return
	}
	c.replCycles.WithLabelValues(outcome).Inc()
	if outcome == "applied" {
		c.replCycleDuration.Observe(dur.Seconds())
	}
}

func AddReplicationTiles(action string, ok, failed int) {
	c := get()
	if c == nil {
		return
	}
	if ok > 0 {
		c.replTiles.WithLabelValues(action, "ok").Add(float64(ok))
	}
	if failed > 0 {
		c.replTiles.WithLabelValues(action, "error").Add(float64(failed))
	}
}

func IncSkippedPoint(reason string) {
	if c := get(); c != nil {
		c.replSkipped.WithLabelValues(reason).Inc()
	}
}

func SetReplicationState(seq int64, ts time.Time) {
	c := get()
	if c == nil {
		return
	}
	c.replSequence.Set(float64(seq))
	if !ts.IsZero() {
		c.replLag.Set(time.Since(ts).Seconds())
	}
}

func ExposeBuildInfo(version string) {
	c := get()
	if c == nil {
		return
	}
	if version == "" {
		version = "dev"
	}
	c.buildInfo.WithLabelValues(version, getComponent()).Set(1)
}
