package config

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ZOOM", "STORE_DRIVER", "REPLICATION_MODE", "FETCH_BACKOFF", "SEED_COLLECT_ERRORS", "H3_RES"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	if c.Repl.Zoom != 17 || c.Seed.Zoom != 17 {
		t.Fatalf("zoom=%d/%d want 17", c.Repl.Zoom, c.Seed.Zoom)
	}
	if c.Store.Driver != "redis" || c.Repl.Mode != "delete" {
		t.Fatalf("driver=%q mode=%q", c.Store.Driver, c.Repl.Mode)
	}
	if c.Repl.FetchBackoff != 15*time.Second || c.Repl.AdvanceBackoff != 15*time.Second {
		t.Fatalf("backoffs=%v/%v", c.Repl.FetchBackoff, c.Repl.AdvanceBackoff)
	}
	if c.Seed.CollectErrors {
		t.Fatal("seeder should fail fast by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ZOOM", "15")
	t.Setenv("STORE_DRIVER", "FS")
	t.Setenv("REPLICATION_MODE", "refresh")
	t.Setenv("FETCH_BACKOFF", "2s")
	t.Setenv("SEED_COLLECT_ERRORS", "yes")
	t.Setenv("H3_RES", "99")
	t.Setenv("REDIS_TTL", "not-a-duration")

	c := FromEnv()
	if c.Repl.Zoom != 15 || c.Store.Driver != "fs" || c.Repl.Mode != "refresh" {
		t.Fatalf("unexpected %+v", c)
	}
	if c.Repl.FetchBackoff != 2*time.Second || !c.Seed.CollectErrors {
		t.Fatalf("unexpected %+v", c)
	}
	if c.Repl.H3Res != 9 {
		t.Fatalf("out of range H3_RES should fall back, got %d", c.Repl.H3Res)
	}
	if c.Store.TTL != 0 {
		t.Fatalf("bad duration should fall back, got %v", c.Store.TTL)
	}
}

func TestParseBBox(t *testing.T) {
	got, err := ParseBBox(" -93.78, 44.53,-92.61,45.44 ")
	if err != nil {
		t.Fatalf("ParseBBox: %v", err)
	}
	want := mercator.Bounds{MinLat: 44.53, MinLon: -93.78, MaxLat: 45.44, MaxLon: -92.61}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bounds (-want +got):\n%s", diff)
	}

	for _, s := range []string{"", "1,2,3", "a,b,c,d", "-92,44,-93,45", "0,95,1,96"} {
		if _, err := ParseBBox(s); !errors.Is(err, ErrBadBBox) {
			t.Fatalf("ParseBBox(%q) err=%v", s, err)
		}
	}
}
