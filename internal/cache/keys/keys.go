// Package keys builds the object and redis keys tiles are stored under.
package keys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

const TileExt = ".osm"

var ErrBadKey = errors.New("keys: malformed tile key")

// TileKey is the public object key: "{z}/{x}/{y}.osm" in top-left indexing.
func TileKey(t mercator.Tile) string {
	return fmt.Sprintf("%d/%d/%d%s", t.Z, t.X, t.Y, TileExt)
}

func ParseTileKey(k string) (mercator.Tile, error) {
	s := strings.TrimPrefix(strings.TrimSpace(k), "/")
	s = strings.TrimSuffix(s, TileExt)
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return mercator.Tile{}, fmt.Errorf("%w: %q", ErrBadKey, k)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return mercator.Tile{}, fmt.Errorf("%w: %q: %v", ErrBadKey, k, err)
		}
		n[i] = v
	}
	t := mercator.Tile{Z: n[0], X: n[1], Y: n[2]}
	if !t.Valid() {
		return mercator.Tile{}, fmt.Errorf("%w: %q outside the grid", ErrBadKey, k)
	}
	return t, nil
}

// Redis namespaces an object key for the redis backed store.
func Redis(prefix, objectKey string) string {
	p := sanitizePrefix(strings.TrimSpace(prefix))
	if p == "" {
		return "tile:" + objectKey
	}
	return p + ":tile:" + objectKey
}

// RedisMeta is the hash holding content type, etag and update time for a tile.
func RedisMeta(prefix, objectKey string) string {
	return Redis(prefix, objectKey) + ":meta"
}

func sanitizePrefix(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == ':' || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
