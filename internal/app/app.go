// Package app holds the process bootstrap shared by the cmd binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/tilestore"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/config"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
	"github.com/mohammed-shakir/osm-tile-cache/internal/logger"
	"github.com/mohammed-shakir/osm-tile-cache/internal/metrics"
)

// Store is a tile store that can also serve reads.
type Store interface {
	cache.TileStore
	cache.Reader
}

type Runtime struct {
	Cfg     config.Config
	Log     *slog.Logger
	Metrics *metrics.Provider
}

// Bootstrap builds the logger and installs the prometheus collectors for one binary.
func Bootstrap(cfg config.Config, component, version string) *Runtime {
	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: component,
		Version:   version,
	}, os.Stdout)
	log := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Addr:      cfg.Metrics.Addr,
		Path:      cfg.Metrics.Path,
		Component: component,
		Build: metrics.BuildInfo{
			Version:   version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	observability.Init(p.Registerer(), true)
	observability.SetComponent(component)
	observability.ExposeBuildInfo(version)

	return &Runtime{Cfg: cfg, Log: log, Metrics: p}
}

// ServeMetrics starts the dedicated scrape listener when METRICS_ENABLED is set.
func (rt *Runtime) ServeMetrics(ctx context.Context) {
	go func() {
		if err := rt.Metrics.Serve(ctx, rt.Log); err != nil {
			rt.Log.Error("metrics server exited", "err", err)
		}
	}()
}

// OpenStore connects the configured tile store. The returned close func is never nil.
func OpenStore(ctx context.Context, cfg config.StoreCfg) (Store, func() error, error) {
	switch cfg.Driver {
	case "", "redis":
		opts := []redisstore.Option{
			redisstore.WithPoolSize(cfg.RedisPool),
			redisstore.WithPassword(cfg.RedisPass),
			redisstore.WithDB(cfg.RedisDB),
		}
		if cfg.OpTimeout > 0 {
			opts = append(opts,
				redisstore.WithDialTimeout(cfg.OpTimeout),
				redisstore.WithReadTimeout(cfg.OpTimeout),
				redisstore.WithWriteTimeout(cfg.OpTimeout),
			)
		}
		cli, err := redisstore.New(ctx, cfg.RedisAddr, opts...)
		if err != nil {
			return nil, func() error { return nil }, err
		}
		st := tilestore.NewRedis(cli, tilestore.RedisConfig{
			Prefix:     cfg.Prefix,
			PublicBase: cfg.PublicBase,
			TTL:        cfg.TTL,
			OpTimeout:  cfg.OpTimeout,
		})
		return st, cli.Close, nil
	case "fs":
		st, err := tilestore.NewFS(cfg.FSRoot, cfg.PublicBase)
		if err != nil {
			return nil, func() error { return nil }, err
		}
		return st, func() error { return nil }, nil
	default:
		return nil, func() error { return nil }, fmt.Errorf("unknown STORE_DRIVER %q (want redis or fs)", cfg.Driver)
	}
}
