// Package mercator implements the global spherical mercator tile pyramid: conversions
// between WGS84 degrees, projected meters, pyramid pixels and tile indices.
package mercator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	EarthRadius     = 6378137.0
	DefaultTileSize = 256
	// MaxZoom bounds the zoom range; ZoomForPixelSize scans [0, MaxZoom).
	MaxZoom = 30
)

var (
	ErrOutOfDomain    = errors.New("mercator: coordinate out of domain")
	ErrLatitudeDomain = errors.New("mercator: latitude must be in (-90, 90)")
	ErrZoomOutOfRange = errors.New("mercator: no zoom level matches pixel size")
	ErrInvalidTile    = errors.New("mercator: tile index outside the grid")
	ErrInvalidQuadKey = errors.New("mercator: invalid quadkey")
)

type Mercator struct {
	TileSize          int
	initialResolution float64
	originShift       float64
}

func New(tileSize int) Mercator {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return Mercator{
		TileSize:          tileSize,
		initialResolution: 2 * math.Pi * EarthRadius / float64(tileSize),
		originShift:       2 * math.Pi * EarthRadius / 2.0,
	}
}

// OriginShift is half the projected equator length (20037508.342789244 m).
func (m Mercator) OriginShift() float64 { return m.originShift }

// LatLonToMeters is the forward spherical mercator transform.
func (m Mercator) LatLonToMeters(p GeoPoint) (Meters, error) {
	if math.IsNaN(p.Lat) || p.Lat <= -90 || p.Lat >= 90 {
		return Meters{}, fmt.Errorf("%w: got %v", ErrLatitudeDomain, p.Lat)
	}
	mx := p.Lon * m.originShift / 180.0
	my := math.Log(math.Tan((90+p.Lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	my = my * m.originShift / 180.0
	return Meters{X: mx, Y: my}, nil
}

func (m Mercator) MetersToLatLon(p Meters) GeoPoint {
	lon := (p.X / m.originShift) * 180.0
	lat := (p.Y / m.originShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return GeoPoint{Lat: lat, Lon: lon}
}

// Resolution is meters per pixel at the equator for the zoom.
func (m Mercator) Resolution(zoom int) float64 {
	return m.initialResolution / math.Exp2(float64(zoom))
}

func (m Mercator) MetersToPixels(p Meters, zoom int) Pixels {
	res := m.Resolution(zoom)
	return Pixels{
		X: (p.X + m.originShift) / res,
		Y: (p.Y + m.originShift) / res,
	}
}

func (m Mercator) PixelsToMeters(p Pixels, zoom int) Meters {
	res := m.Resolution(zoom)
	return Meters{
		X: p.X*res - m.originShift,
		Y: p.Y*res - m.originShift,
	}
}

// PixelsToTile returns the TMS tile covering the pixel. A pixel exactly on a tile
// edge belongs to the tile below/left of it (ceil minus one).
func (m Mercator) PixelsToTile(p Pixels, zoom int) TMS {
	size := float64(m.TileSize)
	return TMS{
		Z: zoom,
		X: int(math.Ceil(p.X/size) - 1),
		Y: int(math.Ceil(p.Y/size) - 1),
	}
}

// PixelsToRaster moves the pixel origin to the top-left corner.
func (m Mercator) PixelsToRaster(p Pixels, zoom int) Pixels {
	mapSize := float64(m.TileSize) * math.Exp2(float64(zoom))
	return Pixels{X: p.X, Y: mapSize - p.Y}
}

func (m Mercator) MetersToTile(p Meters, zoom int) TMS {
	return m.PixelsToTile(m.MetersToPixels(p, zoom), zoom)
}

// TileBounds returns the tile's extent in meters.
func (m Mercator) TileBounds(t TMS) MetersBounds {
	size := float64(m.TileSize)
	lo := m.PixelsToMeters(Pixels{X: float64(t.X) * size, Y: float64(t.Y) * size}, t.Z)
	hi := m.PixelsToMeters(Pixels{X: float64(t.X+1) * size, Y: float64(t.Y+1) * size}, t.Z)
	return MetersBounds{MinX: lo.X, MinY: lo.Y, MaxX: hi.X, MaxY: hi.Y}
}

// TileLatLonBounds returns the tile's extent in degrees.
func (m Mercator) TileLatLonBounds(t TMS) Bounds {
	mb := m.TileBounds(t)
	lo := m.MetersToLatLon(Meters{X: mb.MinX, Y: mb.MinY})
	hi := m.MetersToLatLon(Meters{X: mb.MaxX, Y: mb.MaxY})
	return Bounds{MinLat: lo.Lat, MinLon: lo.Lon, MaxLat: hi.Lat, MaxLon: hi.Lon}
}

// ZoomForPixelSize returns the deepest zoom whose resolution is still at least
// pixelSize, never going below zero. Sizes finer than the whole scanned range are
// an error rather than a guessed level.
func (m Mercator) ZoomForPixelSize(pixelSize float64) (int, error) {
	for i := range MaxZoom {
		if pixelSize > m.Resolution(i) {
			if i == 0 {
				return 0, nil
			}
			return i - 1, nil
		}
	}
	return 0, fmt.Errorf("%w: %v m/px", ErrZoomOutOfRange, pixelSize)
}

// LatLonToTile composes the conversions and returns the top-left tile at zoom.
func (m Mercator) LatLonToTile(p GeoPoint, zoom int) (Tile, error) {
	if zoom < 0 || zoom >= MaxZoom {
		return Tile{}, fmt.Errorf("%w: zoom %d", ErrOutOfDomain, zoom)
	}
	if err := p.Validate(); err != nil {
		return Tile{}, err
	}
	mp, err := m.LatLonToMeters(p)
	if err != nil {
		return Tile{}, err
	}
	t := m.MetersToTile(mp, zoom)
	if !t.Valid() {
		return Tile{}, fmt.Errorf("%w: %v at zoom %d maps to tms %d/%d", ErrInvalidTile, p, zoom, t.X, t.Y)
	}
	return t.TopLeft(), nil
}

// TileGeoBounds is TileLatLonBounds for a top-left tile.
func (m Mercator) TileGeoBounds(t Tile) Bounds {
	return m.TileLatLonBounds(t.TMS())
}

// QuadKey encodes the tile one base-4 digit per level, most significant first.
func (t Tile) QuadKey() string {
	var b strings.Builder
	b.Grow(t.Z)
	for i := t.Z; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if t.X&mask != 0 {
			digit++
		}
		if t.Y&mask != 0 {
			digit += 2
		}
		b.WriteByte(digit)
	}
	return b.String()
}

func (t TMS) QuadKey() string {
	return t.TopLeft().QuadKey()
}

func TileFromQuadKey(qk string) (Tile, error) {
	if len(qk) >= MaxZoom {
		return Tile{}, fmt.Errorf("%w: %q too long", ErrInvalidQuadKey, qk)
	}
	t := Tile{Z: len(qk)}
	for i := 0; i < len(qk); i++ {
		mask := 1 << (len(qk) - 1 - i)
		switch qk[i] {
		case '0':
		case '1':
			t.X |= mask
		case '2':
			t.Y |= mask
		case '3':
			t.X |= mask
			t.Y |= mask
		default:
			return Tile{}, fmt.Errorf("%w: digit %q", ErrInvalidQuadKey, qk[i])
		}
	}
	return t, nil
}
