package replication

import (
	"iter"
	"slices"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

// TileSet accumulates the distinct tiles touched by a diff at one zoom.
type TileSet struct {
	merc    mercator.Mercator
	zoom    int
	tiles   map[mercator.Tile]struct{}
	skipped int
}

func NewTileSet(m mercator.Mercator, zoom int) *TileSet {
	return &TileSet{merc: m, zoom: zoom, tiles: map[mercator.Tile]struct{}{}}
}

// Add maps p to its tile. Points outside the projectable domain are counted and
// reported, never coerced onto an edge tile.
func (s *TileSet) Add(p mercator.GeoPoint) error {
	t, err := s.merc.LatLonToTile(p, s.zoom)
	if err != nil {
		s.skipped++
		return err
	}
	s.tiles[t] = struct{}{}
	return nil
}

func (s *TileSet) Len() int     { return len(s.tiles) }
func (s *TileSet) Skipped() int { return s.skipped }

// Sorted returns the tiles ordered by x then y.
func (s *TileSet) Sorted() []mercator.Tile {
	out := make([]mercator.Tile, 0, len(s.tiles))
	for t := range s.tiles {
		out = append(out, t)
	}
	slices.SortFunc(out, compareTiles)
	return out
}

// ComputeTileSet is the one-shot form of TileSet for an already decoded point stream.
func ComputeTileSet(m mercator.Mercator, zoom int, points iter.Seq[mercator.GeoPoint]) []mercator.Tile {
	s := NewTileSet(m, zoom)
	for p := range points {
		_ = s.Add(p)
	}
	return s.Sorted()
}

func compareTiles(a, b mercator.Tile) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}
