package seeder

import (
	"fmt"
	"iter"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// Range is an inclusive rectangle of top-left tile indices at one zoom.
type Range struct {
	Zoom       int
	MinX, MinY int
	MaxX, MaxY int
}

// Grid spans the tiles between the box's north-west and south-east corners.
func Grid(m mercator.Mercator, b mercator.Bounds, zoom int) (Range, error) {
	if err := b.Validate(); err != nil {
		return Range{}, fmt.Errorf("seed bbox: %w", err)
	}
	nw, err := m.LatLonToTile(b.NorthWest(), zoom)
	if err != nil {
		return Range{}, fmt.Errorf("seed bbox north-west corner: %w", err)
	}
	se, err := m.LatLonToTile(b.SouthEast(), zoom)
	if err != nil {
		return Range{}, fmt.Errorf("seed bbox south-east corner: %w", err)
	}
	return Range{
		Zoom: zoom,
		MinX: min(nw.X, se.X), MaxX: max(nw.X, se.X),
		MinY: min(nw.Y, se.Y), MaxY: max(nw.Y, se.Y),
	}, nil
}

func (r Range) Count() int {
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

func (r Range) Contains(t mercator.Tile) bool {
	return t.Z == r.Zoom && t.X >= r.MinX && t.X <= r.MaxX && t.Y >= r.MinY && t.Y <= r.MaxY
}

// Tiles enumerates the range column by column: x outer, y inner.
func (r Range) Tiles() iter.Seq[mercator.Tile] {
	return func(yield func(mercator.Tile) bool) {
		for x := r.MinX; x <= r.MaxX; x++ {
			for y := r.MinY; y <= r.MaxY; y++ {
				if !yield(mercator.Tile{Z: r.Zoom, X: x, Y: y}) {
					return
				}
			}
		}
	}
}
