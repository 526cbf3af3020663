package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/osm-tile-cache/internal/app"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/config"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/server"
	"github.com/mohammed-shakir/osm-tile-cache/internal/invalidation/kafka"
	h3mapper "github.com/mohammed-shakir/osm-tile-cache/internal/mapper/h3"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
	"github.com/mohammed-shakir/osm-tile-cache/internal/refresh"
	"github.com/mohammed-shakir/osm-tile-cache/internal/replication"
	"github.com/mohammed-shakir/osm-tile-cache/internal/upstream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	rt := app.Bootstrap(cfg, "replicator", Version)
	log := rt.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	rt.ServeMetrics(ctx)

	store, closeStore, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		log.Error("tile store setup failed", "driver", cfg.Store.Driver, "err", err)
		return 1
	}
	defer func() { _ = closeStore() }()

	client := httpclient.NewOutbound(
		httpclient.WithTimeout(cfg.UpstreamTimeout),
		httpclient.WithMaxConnsPerHost(cfg.Repl.RefreshWorkers+1),
	)
	feed, err := upstream.NewFeed(log, client, cfg.Repl.URL)
	if err != nil {
		log.Error("replication feed setup failed", "err", err)
		return 1
	}
	api, err := upstream.NewMapAPI(log, client, cfg.MapAPIURL)
	if err != nil {
		log.Error("map api setup failed", "err", err)
		return 1
	}

	merc := mercator.New(mercator.DefaultTileSize)
	svc := refresh.New(log, merc, api, store)
	applier, err := replication.NewApplier(cfg.Repl.Mode, store, svc, cfg.Repl.RefreshWorkers, log)
	if err != nil {
		log.Error("applier setup failed", "mode", cfg.Repl.Mode, "err", err)
		return 1
	}

	lcfg := replication.DefaultConfig()
	lcfg.Zoom = cfg.Repl.Zoom
	lcfg.FetchBackoff = cfg.Repl.FetchBackoff
	lcfg.AdvanceBackoff = cfg.Repl.AdvanceBackoff

	var opts []replication.Option
	inval := kafka.FromEnv()
	if inval.Active() {
		popts := kafka.PublisherOptions{Logger: log, Register: rt.Metrics.Registerer()}
		if cfg.Repl.H3Res >= 0 {
			cells, err := h3mapper.New(merc, cfg.Repl.H3Res)
			if err != nil {
				log.Error("h3 mapper setup failed", "res", cfg.Repl.H3Res, "err", err)
				return 1
			}
			popts.Cells = cells
		}
		pub, err := kafka.NewPublisher(inval, popts)
		if err != nil {
			log.Error("invalidation publisher setup failed", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, replication.WithNotifier(pub))
		log.Info("publishing invalidations", "topic", inval.Topic, "brokers", inval.Brokers)
	}

	loop := replication.New(log, merc, feed, replication.FileCursor{Path: cfg.Repl.StatePath}, applier, lcfg, opts...)

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- loop.Run(ctx)
		stop()
	}()

	err = server.Run(ctx, server.Options{
		Addr:    cfg.Addr,
		Logger:  log,
		Tiles:   store,
		Ready:   loop,
		Status:  server.StatusFunc(func() any { return loop.Status() }),
		Metrics: rt.Metrics.Handler(),
	})
	if err != nil {
		log.Error("server exited with error", "err", err)
		return 1
	}
	if err := <-loopErr; err != nil {
		if errors.Is(err, replication.ErrInvalidState) {
			log.Error("replication cursor unusable; fix the state file and restart", "path", cfg.Repl.StatePath, "err", err)
		} else {
			log.Error("replication loop stopped", "err", err)
		}
		return 1
	}
	log.Info("replicator stopped")
	return 0
}
