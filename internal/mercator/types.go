package mercator

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS84 position in degrees.
type GeoPoint struct {
	Lat float64
	Lon float64
}

func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("%w: NaN coordinate", ErrOutOfDomain)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrOutOfDomain, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrOutOfDomain, p.Lon)
	}
	return nil
}

// Meters is a point in spherical mercator (EPSG:3857) meters.
type Meters struct {
	X float64
	Y float64
}

// Pixels is a point in pyramid pixel space at some zoom, origin bottom-left.
type Pixels struct {
	X float64
	Y float64
}

// Tile is a tile index with the origin at the top-left of the extent (slippy map / XYZ).
// Cache keys and public URLs are always built from this form.
type Tile struct {
	Z int
	X int
	Y int
}

// TMS is a tile index with the origin at the bottom-left of the extent.
type TMS struct {
	Z int
	X int
	Y int
}

func (t Tile) Valid() bool {
	return validIndex(t.Z, t.X, t.Y)
}

func (t TMS) Valid() bool {
	return validIndex(t.Z, t.X, t.Y)
}

func validIndex(z, x, y int) bool {
	if z < 0 || z > MaxZoom {
		return false
	}
	n := 1 << z
	return x >= 0 && x < n && y >= 0 && y < n
}

// FlipY converts a row index between the two origin conventions. It is its own inverse.
func FlipY(zoom, y int) int {
	return (1<<zoom - 1) - y
}

func (t TMS) TopLeft() Tile {
	return Tile{Z: t.Z, X: t.X, Y: FlipY(t.Z, t.Y)}
}

func (t Tile) TMS() TMS {
	return TMS{Z: t.Z, X: t.X, Y: FlipY(t.Z, t.Y)}
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Less orders tiles by zoom, then X, then Y.
func (t Tile) Less(o Tile) bool {
	if t.Z != o.Z {
		return t.Z < o.Z
	}
	if t.X != o.X {
		return t.X < o.X
	}
	return t.Y < o.Y
}

// Bounds is a geographic box in degrees.
type Bounds struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// NorthWest and SouthEast are the corners used to span a tile grid.
func (b Bounds) NorthWest() GeoPoint { return GeoPoint{Lat: b.MaxLat, Lon: b.MinLon} }
func (b Bounds) SouthEast() GeoPoint { return GeoPoint{Lat: b.MinLat, Lon: b.MaxLon} }

// BBoxParam renders the box in the upstream API order: minLon,minLat,maxLon,maxLat.
func (b Bounds) BBoxParam() string {
	return fmt.Sprintf("%0.7f,%0.7f,%0.7f,%0.7f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

func (b Bounds) Validate() error {
	if err := (GeoPoint{Lat: b.MinLat, Lon: b.MinLon}).Validate(); err != nil {
		return err
	}
	if err := (GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}).Validate(); err != nil {
		return err
	}
	if b.MaxLat < b.MinLat || b.MaxLon < b.MinLon {
		return fmt.Errorf("%w: bounds must satisfy max >= min", ErrOutOfDomain)
	}
	return nil
}

// MetersBounds is a box in spherical mercator meters.
type MetersBounds struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}
