// Package invalidation defines the message downstream caches receive when the
// replication loop invalidates tiles.
package invalidation

import (
	"fmt"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/cache/keys"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

const (
	OpDelete  = "delete"
	OpRefresh = "refresh"
)

// Event lists the tiles one replication sequence invalidated. Seq orders events per
// tile, so a consumer can drop replays and stale reorders.
type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Seq     int64     `json:"seq"`
	Tiles   []string  `json:"tiles"`
	H3Res   int       `json:"h3_res,omitempty"`
	H3Cells []string  `json:"h3_cells,omitempty"`
	TS      time.Time `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case OpDelete, OpRefresh:
	default:
		return fmt.Errorf("op must be delete|refresh")
	}
	if e.Seq < 0 {
		return fmt.Errorf("seq must be >= 0")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if len(e.Tiles) == 0 {
		return fmt.Errorf("tiles is required")
	}
	for _, k := range e.Tiles {
		if _, err := keys.ParseTileKey(k); err != nil {
			return fmt.Errorf("tiles: %w", err)
		}
	}
	if len(e.H3Cells) > 0 && (e.H3Res < 0 || e.H3Res > 15) {
		return fmt.Errorf("h3_res must be 0..15")
	}
	return nil
}

// TileIndexes parses Tiles. Call Validate first.
func (e Event) TileIndexes() []mercator.Tile {
	out := make([]mercator.Tile, 0, len(e.Tiles))
	for _, k := range e.Tiles {
		if t, err := keys.ParseTileKey(k); err == nil {
			out = append(out, t)
		}
	}
	return out
}
