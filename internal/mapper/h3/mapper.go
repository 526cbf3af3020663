// Package h3mapper maps tiles onto the H3 cells that cover them, so caches indexed by
// H3 can follow tile invalidations.
package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

type Mapper struct {
	merc mercator.Mercator
	res  int
}

func New(m mercator.Mercator, res int) (*Mapper, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	return &Mapper{merc: m, res: res}, nil
}

func (m *Mapper) Resolution() int { return m.res }

// CellsForBounds returns the sorted, unique cells whose centers fall inside b. A box
// smaller than one cell yields the cell containing its center.
func (m *Mapper) CellsForBounds(b mercator.Bounds) ([]string, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	// Rectangular loop in degrees, counter-clockwise from the south-west corner.
	outer := h3.GeoLoop{
		{Lat: b.MinLat, Lng: b.MinLon},
		{Lat: b.MinLat, Lng: b.MaxLon},
		{Lat: b.MaxLat, Lng: b.MaxLon},
		{Lat: b.MaxLat, Lng: b.MinLon},
	}
	cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, m.res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	if len(cells) == 0 {
		c := b.Center()
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: c.Lat, Lng: c.Lon}, m.res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for center: %w", err)
		}
		cells = []h3.Cell{cell}
	}
	return uniqueSorted(cells), nil
}

func (m *Mapper) CellsForTile(t mercator.Tile) ([]string, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("h3 cells for %v: %w", t, mercator.ErrInvalidTile)
	}
	return m.CellsForBounds(m.merc.TileGeoBounds(t))
}

// CellsForTiles is the union over tiles, sorted.
func (m *Mapper) CellsForTiles(tiles []mercator.Tile) ([]string, error) {
	seen := map[string]struct{}{}
	for _, t := range tiles {
		cells, err := m.CellsForTile(t)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

func uniqueSorted(cells []h3.Cell) []string {
	seen := make(map[string]struct{}, len(cells))
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		s := c.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
