// Package config reads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

type StoreCfg struct {
	// Driver is "redis" or "fs".
	Driver     string
	RedisAddr  string
	RedisPool  int
	RedisPass  string
	RedisDB    int
	Prefix     string
	TTL        time.Duration
	OpTimeout  time.Duration
	FSRoot     string
	PublicBase string
}

type ReplicationCfg struct {
	URL            string
	StatePath      string
	Mode           string
	Zoom           int
	FetchBackoff   time.Duration
	AdvanceBackoff time.Duration
	RefreshWorkers int
	H3Res          int
}

type SeedCfg struct {
	BBox          string
	Zoom          int
	Workers       int
	CollectErrors bool
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	Metrics    MetricsCfg
	LogLevel   string
	LogConsole bool
	LogSampleN int
	MapAPIURL  string
	// UpstreamTimeout bounds one map API or replication request.
	UpstreamTimeout time.Duration

	Store StoreCfg
	Repl  ReplicationCfg
	Seed  SeedCfg
}

func FromEnv() Config {
	zoom := getint("ZOOM", 17)
	h3Res := getint("H3_RES", 9)
	if h3Res < -1 || h3Res > 15 {
		h3Res = 9
	}

	return Config{
		Addr: getenv("ADDR", ":8090"),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		MapAPIURL:       getenv("MAP_API_URL", "https://api.openstreetmap.org/api/0.6/map"),
		UpstreamTimeout: getduration("UPSTREAM_TIMEOUT", 30*time.Second),
		Store: StoreCfg{
			Driver:     strings.ToLower(getenv("STORE_DRIVER", "redis")),
			RedisAddr:  getenv("REDIS_ADDR", "localhost:6379"),
			RedisPool:  getint("REDIS_POOL", 64),
			RedisPass:  getenv("REDIS_PASSWORD", ""),
			RedisDB:    getint("REDIS_DB", 0),
			Prefix:     getenv("REDIS_PREFIX", "osm"),
			TTL:        getduration("REDIS_TTL", 0),
			OpTimeout:  getduration("CACHE_OP_TIMEOUT", 2*time.Second),
			FSRoot:     getenv("FS_ROOT", "./tiles"),
			PublicBase: getenv("TILE_PUBLIC_BASE", ""),
		},
		Repl: ReplicationCfg{
			URL:            getenv("REPLICATION_URL", "https://planet.openstreetmap.org/replication/minute"),
			StatePath:      getenv("STATE_PATH", "./state.txt"),
			Mode:           strings.ToLower(getenv("REPLICATION_MODE", "delete")),
			Zoom:           zoom,
			FetchBackoff:   getduration("FETCH_BACKOFF", 15*time.Second),
			AdvanceBackoff: getduration("ADVANCE_BACKOFF", 15*time.Second),
			RefreshWorkers: getint("REFRESH_WORKERS", 4),
			H3Res:          h3Res,
		},
		Seed: SeedCfg{
			BBox:          getenv("SEED_BBOX", ""),
			Zoom:          zoom,
			Workers:       getint("SEED_WORKERS", 8),
			CollectErrors: getbool("SEED_COLLECT_ERRORS", false),
		},
	}
}

var ErrBadBBox = errors.New("config: bbox must be minLon,minLat,maxLon,maxLat")

// ParseBBox reads a box in the upstream API order.
func ParseBBox(s string) (mercator.Bounds, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 4 {
		return mercator.Bounds{}, fmt.Errorf("%w: %q", ErrBadBBox, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return mercator.Bounds{}, fmt.Errorf("%w: %q: %v", ErrBadBBox, s, err)
		}
		v[i] = f
	}
	b := mercator.Bounds{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}
	if err := b.Validate(); err != nil {
		return mercator.Bounds{}, fmt.Errorf("%w: %w", ErrBadBBox, err)
	}
	return b, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
