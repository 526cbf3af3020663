package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

const (
	ModeDelete  = "delete"
	ModeRefresh = "refresh"
)

// ApplyReport partitions the tiles of one cycle by object key. Failed tiles stay stale
// until a later diff touches them again.
type ApplyReport struct {
	Applied int
	Failed  map[string]error
}

// Applier invalidates one cycle's tiles. An error means nothing was applied and the
// cursor must not advance.
type Applier interface {
	Mode() string
	Apply(ctx context.Context, tiles []mercator.Tile) (ApplyReport, error)
}

// DeleteApplier removes touched tiles so the next read regenerates them.
type DeleteApplier struct {
	Store     cache.TileStore
	BatchSize int
}

func (DeleteApplier) Mode() string { return ModeDelete }

func (a DeleteApplier) Apply(ctx context.Context, tiles []mercator.Tile) (ApplyReport, error) {
	rep := ApplyReport{Failed: map[string]error{}}
	if len(tiles) == 0 {
		return rep, nil
	}
	size := a.BatchSize
	if size <= 0 {
		size = 500
	}
	var hard []error
	for start := 0; start < len(tiles); start += size {
		batch := tiles[start:min(start+size, len(tiles))]
		res, err := a.Store.Delete(ctx, batch)
		if err != nil {
			hard = append(hard, err)
		}
		rep.Applied += len(res.Deleted)
		for k, e := range res.Failed {
			rep.Failed[k] = e
		}
		if err != nil && len(res.Deleted) == 0 && len(res.Failed) == 0 {
			for _, t := range batch {
				rep.Failed[keys.TileKey(t)] = err
			}
		}
	}
	if rep.Applied == 0 && len(hard) > 0 {
		return rep, fmt.Errorf("delete %d tiles: %w", len(tiles), errors.Join(hard...))
	}
	return rep, nil
}

type Refresher interface {
	Refresh(ctx context.Context, t mercator.Tile) (string, error)
}

// RefreshApplier regenerates touched tiles immediately on a bounded worker pool.
type RefreshApplier struct {
	Refresher Refresher
	Workers   int
	Logger    *slog.Logger
}

func (RefreshApplier) Mode() string { return ModeRefresh }

func (a RefreshApplier) Apply(ctx context.Context, tiles []mercator.Tile) (ApplyReport, error) {
	rep := ApplyReport{Failed: map[string]error{}}
	if len(tiles) == 0 {
		return rep, nil
	}
	workers := a.Workers
	if workers <= 0 {
		workers = 4
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	jobs := make(chan mercator.Tile)
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for t := range jobs {
				url, err := a.Refresher.Refresh(ctx, t)
				mu.Lock()
				if err != nil {
					rep.Failed[keys.TileKey(t)] = err
				} else {
					rep.Applied++
				}
				mu.Unlock()
				if err == nil {
					logger.DebugContext(ctx, "tile refreshed", "tile", t.String(), "url", url)
				}
			}
		}()
	}
	for _, t := range tiles {
		if ctx.Err() != nil {
			break
		}
		jobs <- t
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return rep, err
	}
	if rep.Applied == 0 {
		errs := make([]error, 0, len(rep.Failed))
		for _, e := range rep.Failed {
			errs = append(errs, e)
		}
		return rep, fmt.Errorf("refresh %d tiles: %w", len(tiles), errors.Join(errs...))
	}
	return rep, nil
}

// NewApplier picks the invalidation policy for a deployment.
func NewApplier(mode string, store cache.TileStore, r Refresher, workers int, logger *slog.Logger) (Applier, error) {
	switch mode {
	case "", ModeDelete:
		return DeleteApplier{Store: store}, nil
	case ModeRefresh:
		if r == nil {
			return nil, errors.New("replication: refresh mode needs a refresher")
		}
		return RefreshApplier{Refresher: r, Workers: workers, Logger: logger}, nil
	}
	return nil, fmt.Errorf("replication: unknown mode %q", mode)
}
