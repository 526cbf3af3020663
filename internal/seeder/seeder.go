// Package seeder fills the cache for every tile intersecting a bounding box.
package seeder

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

const DefaultWorkers = 8

type Refresher interface {
	Refresh(ctx context.Context, t mercator.Tile) (string, error)
}

// Result is the outcome of one tile. A Result with a zero Tile and an Err reports a
// failure to build the grid itself.
type Result struct {
	Tile mercator.Tile
	URL  string
	Err  error
}

type Summary struct {
	Tiles  int
	OK     int
	Failed int
	Errors []error
}

type Seeder struct {
	logger    *slog.Logger
	merc      mercator.Mercator
	refresher Refresher
	workers   int
	failFast  bool
}

type Option func(*Seeder)

func WithWorkers(n int) Option {
	return func(s *Seeder) { s.workers = n }
}

// WithFailFast controls whether the first failed tile stops the run. When disabled
// every tile is attempted and failures are collected.
func WithFailFast(on bool) Option {
	return func(s *Seeder) { s.failFast = on }
}

func New(logger *slog.Logger, m mercator.Mercator, r Refresher, opts ...Option) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Seeder{logger: logger, merc: m, refresher: r, workers: DefaultWorkers, failFast: true}
	for _, o := range opts {
		o(s)
	}
	if s.workers <= 0 {
		s.workers = DefaultWorkers
	}
	return s
}

// Run refreshes every tile of the box at zoom on a bounded worker pool and yields
// results as tiles complete. With one worker results follow Range.Tiles order.
// Breaking out of the loop cancels outstanding work.
func (s *Seeder) Run(ctx context.Context, b mercator.Bounds, zoom int) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		rng, err := Grid(s.merc, b, zoom)
		if err != nil {
			yield(Result{Err: err})
			return
		}
		s.logger.Info("seeding region",
			"bbox", b.BBoxParam(), "zoom", zoom, "tiles", rng.Count(),
			"workers", s.workers, "fail_fast", s.failFast)

		ctx, cancel := context.WithCancel(ctx)
		jobs := make(chan mercator.Tile)
		results := make(chan Result)

		var wg sync.WaitGroup
		wg.Add(s.workers)
		for range s.workers {
			go func() {
				defer wg.Done()
				for t := range jobs {
					if ctx.Err() != nil {
						return
					}
					url, err := s.refresher.Refresh(ctx, t)
					observability.ObserveSeedTile(err)
					select {
					case results <- Result{Tile: t, URL: url, Err: err}:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
		go func() {
			defer close(jobs)
			for t := range rng.Tiles() {
				select {
				case jobs <- t:
				case <-ctx.Done():
					return
				}
			}
		}()
		go func() {
			wg.Wait()
			close(results)
		}()
		defer func() {
			cancel()
			for range results {
			}
		}()

		for r := range results {
			if !yield(r) {
				return
			}
			if r.Err != nil && s.failFast {
				s.logger.Warn("seeding stopped at first failure", "tile", r.Tile.String(), "err", r.Err)
				return
			}
		}
	}
}

// Seed drains Run and summarises it. The returned error joins every tile failure and
// any cancellation of ctx.
func (s *Seeder) Seed(ctx context.Context, b mercator.Bounds, zoom int) (Summary, error) {
	var sum Summary
	if rng, err := Grid(s.merc, b, zoom); err == nil {
		sum.Tiles = rng.Count()
	}
	for r := range s.Run(ctx, b, zoom) {
		if r.Err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, r.Err)
			continue
		}
		sum.OK++
	}
	errs := sum.Errors
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return sum, errors.Join(errs...)
}
