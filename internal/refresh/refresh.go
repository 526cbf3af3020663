// Package refresh regenerates a single cached tile from the upstream map API.
package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache"
	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
	mylog "github.com/mohammed-shakir/osm-tile-cache/internal/logger"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// Fetcher returns the payload covering a bounding box and its declared content type.
type Fetcher interface {
	FetchBBox(ctx context.Context, b mercator.Bounds) ([]byte, string, error)
}

type Service struct {
	logger  *slog.Logger
	merc    mercator.Mercator
	fetcher Fetcher
	store   cache.TileStore
}

func New(logger *slog.Logger, m mercator.Mercator, f Fetcher, s cache.TileStore) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, merc: m, fetcher: f, store: s}
}

// Refresh fetches the tile's bounding box and overwrites the cached tile, returning its
// public URL. Fetch errors are returned as-is; retrying is up to the caller.
func (s *Service) Refresh(ctx context.Context, t mercator.Tile) (string, error) {
	if !t.Valid() {
		err := fmt.Errorf("refresh %v: %w", t, mercator.ErrInvalidTile)
		observability.ObserveRefresh(err)
		return "", err
	}
	ctx = mylog.WithTile(ctx, t.String())
	bounds := s.merc.TileGeoBounds(t)

	payload, contentType, err := s.fetcher.FetchBBox(ctx, bounds)
	if err != nil {
		observability.ObserveRefresh(err)
		return "", fmt.Errorf("fetch tile %v: %w", t, err)
	}

	url, err := s.store.Put(ctx, t, payload, contentType)
	observability.ObserveRefresh(err)
	if err != nil {
		return "", fmt.Errorf("store tile %v: %w", t, err)
	}
	s.logger.DebugContext(ctx, "tile refreshed", "bytes", len(payload), "url", url)
	return url, nil
}
