// Package cache defines the tile store the seeder, refresher and replication loop write to.
package cache

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// DefaultContentType is what the upstream map API declares for its payloads.
const DefaultContentType = "text/xml; charset=utf-8"

var ErrNotFound = errors.New("cache: tile not found")

// DeleteResult partitions a batch delete by object key. A key listed in Failed still
// holds stale data until a later delete or refresh succeeds.
type DeleteResult struct {
	Deleted []string
	Failed  map[string]error
}

func (r DeleteResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, err := range r.Failed {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TileStore is the only write path to cached tiles. Put overwrites and returns the
// tile's public URL.
type TileStore interface {
	Put(ctx context.Context, t mercator.Tile, payload []byte, contentType string) (string, error)
	Delete(ctx context.Context, tiles []mercator.Tile) (DeleteResult, error)
}

// Object is a stored tile as read back by the HTTP endpoint and tests.
type Object struct {
	Payload     []byte
	ContentType string
	ETag        string
	URL         string
}

type Reader interface {
	Get(ctx context.Context, t mercator.Tile) (Object, error)
}
