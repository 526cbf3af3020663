package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/osm-tile-cache/internal/app"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/config"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/server"
	"github.com/mohammed-shakir/osm-tile-cache/internal/invalidation/kafka"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	rt := app.Bootstrap(cfg, "invalidator", Version)
	log := rt.Log

	inval := kafka.FromEnv()
	if !inval.Active() {
		log.Error("invalidation is not enabled; set INVALIDATION_ENABLED=true and INVALIDATION_DRIVER=kafka")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rt.ServeMetrics(ctx)

	store, closeStore, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Error("tile store setup failed", "driver", cfg.Store.Driver, "err", err)
		return 1
	}
	defer func() { _ = closeStore() }()

	runner := kafka.New(inval, store, kafka.Options{Logger: log, Register: rt.Metrics.Registerer()})
	if err := runner.Start(ctx); err != nil {
		log.Error("invalidation runner start failed", "err", err)
		return 1
	}
	defer runner.Stop()

	if err := server.Run(ctx, server.Options{
		Addr:    cfg.Addr,
		Logger:  log,
		Tiles:   store,
		Ready:   runner,
		Metrics: rt.Metrics.Handler(),
	}); err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	log.Info("invalidator stopped")
	return 0
}
