package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/osm-tile-cache/internal/app"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/config"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
	"github.com/mohammed-shakir/osm-tile-cache/internal/refresh"
	"github.com/mohammed-shakir/osm-tile-cache/internal/seeder"
	"github.com/mohammed-shakir/osm-tile-cache/internal/upstream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	bboxFlag := flag.String("bbox", cfg.Seed.BBox, "minLon,minLat,maxLon,maxLat")
	zoomFlag := flag.Int("zoom", cfg.Seed.Zoom, "zoom level to seed")
	workersFlag := flag.Int("workers", cfg.Seed.Workers, "concurrent tile fetches")
	collectFlag := flag.Bool("collect-errors", cfg.Seed.CollectErrors, "attempt every tile and report all failures")
	flag.Parse()

	rt := app.Bootstrap(cfg, "seeder", Version)
	log := rt.Log

	bbox, err := config.ParseBBox(*bboxFlag)
	if err != nil {
		log.Error("invalid bbox", "err", err)
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

	client := httpclient.NewOutbound(
		httpclient.WithTimeout(cfg.UpstreamTimeout),
		httpclient.WithMaxConnsPerHost(*workersFlag),
	)
	api, err := upstream.NewMapAPI(log, client, cfg.MapAPIURL)
	if err != nil {
		log.Error("map api setup failed", "err", err)
		return 1
	}

	merc := mercator.New(mercator.DefaultTileSize)
	svc := refresh.New(log, merc, api, store)
	sd := seeder.New(log, merc, svc,
		seeder.WithWorkers(*workersFlag),
		seeder.WithFailFast(!*collectFlag),
	)

	log.Info("seeding region", "bbox", bbox.BBoxParam(), "zoom", *zoomFlag, "workers", *workersFlag, "version", Version)
	sum, err := sd.Seed(ctx, bbox, *zoomFlag)
	fmt.Fprintf(os.Stdout, "tiles=%d ok=%d failed=%d\n", sum.Tiles, sum.OK, sum.Failed)
	if err != nil {
		log.Error("seeding finished with errors", "failed", sum.Failed, "err", err)
		return 1
	}
	log.Info("seeding done", "tiles", sum.OK)
	return 0
}
