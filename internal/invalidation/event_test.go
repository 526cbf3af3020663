package invalidation

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

func mustTS() time.Time { return time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC) }

func TestEvent_Validate_HappyPath(t *testing.T) {
	ev := Event{
		Version: 1, Op: OpDelete, Seq: 101, TS: mustTS(),
		Tiles:   []string{"17/31675/47149.osm", "17/31577/47160.osm"},
		H3Res:   9,
		H3Cells: []string{"892a100d2b3ffff"},
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	want := []mercator.Tile{{Z: 17, X: 31675, Y: 47149}, {Z: 17, X: 31577, Y: 47160}}
	if diff := cmp.Diff(want, ev.TileIndexes()); diff != "" {
		t.Fatalf("tiles (-want +got):\n%s", diff)
	}
}

func TestEvent_Validate_Rejects(t *testing.T) {
	base := Event{Version: 1, Op: OpRefresh, Seq: 1, TS: mustTS(), Tiles: []string{"1/0/0.osm"}}
	cases := map[string]func(*Event){
		"version":  func(e *Event) { e.Version = 2 },
		"op":       func(e *Event) { e.Op = "insert" },
		"seq":      func(e *Event) { e.Seq = -1 },
		"ts":       func(e *Event) { e.TS = time.Time{} },
		"no tiles": func(e *Event) { e.Tiles = nil },
		"bad tile": func(e *Event) { e.Tiles = []string{"1/5/0.osm"} },
		"h3 res":   func(e *Event) { e.H3Cells = []string{"x"}; e.H3Res = 16 },
	}
	for name, mut := range cases {
		ev := base
		mut(&ev)
		if err := ev.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
