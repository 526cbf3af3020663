package keys

import (
	"errors"
	"regexp"
	"testing"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

func TestTileKey_Format(t *testing.T) {
	got := TileKey(mercator.Tile{Z: 17, X: 31675, Y: 47149})
	if got != "17/31675/47149.osm" {
		t.Fatalf("TileKey=%s", got)
	}
}

func TestParseTileKey_RoundTrip(t *testing.T) {
	in := mercator.Tile{Z: 12, X: 1024, Y: 4000}
	got, err := ParseTileKey(TileKey(in))
	if err != nil {
		t.Fatalf("ParseTileKey: %v", err)
	}
	if got != in {
		t.Fatalf("round trip %v -> %v", in, got)
	}
	if got, err := ParseTileKey("/3/1/2"); err != nil || got != (mercator.Tile{Z: 3, X: 1, Y: 2}) {
		t.Fatalf("leading slash, no ext: %v %v", got, err)
	}
}

func TestParseTileKey_Rejects(t *testing.T) {
	for _, k := range []string{"", "1/2", "a/b/c.osm", "1/2/3/4.osm", "2/4/0.osm", "-1/0/0.osm"} {
		if _, err := ParseTileKey(k); !errors.Is(err, ErrBadKey) {
			t.Fatalf("ParseTileKey(%q) err=%v want ErrBadKey", k, err)
		}
	}
}

func TestRedis_PrefixSanitized(t *testing.T) {
	k := Redis("  osm data!! ", "1/0/0.osm")
	if k != "osm_data-:tile:1/0/0.osm" {
		t.Fatalf("Redis key=%s", k)
	}
	if !regexp.MustCompile(`^[A-Za-z0-9:_\-/.]+$`).MatchString(k) {
		t.Fatalf("key contains disallowed characters: %s", k)
	}
	if Redis("", "1/0/0.osm") != "tile:1/0/0.osm" {
		t.Fatalf("empty prefix key=%s", Redis("", "1/0/0.osm"))
	}
	if RedisMeta("p", "1/0/0.osm") != "p:tile:1/0/0.osm:meta" {
		t.Fatalf("meta key=%s", RedisMeta("p", "1/0/0.osm"))
	}
}
