package osmchange

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="test">
  <create>
    <node id="10" version="1" timestamp="2026-01-03T10:00:01Z" uid="1" user="a" changeset="5" lat="45.0" lon="-93.0">
      <tag k="amenity" v="cafe"/>
    </node>
  </create>
  <modify>
    <way id="20" version="3" timestamp="2026-01-03T10:00:02Z" uid="1" user="a" changeset="6">
      <nd ref="10" lat="45.0" lon="-93.0"/>
      <nd ref="11"/>
      <nd ref="12" lat="44.98" lon="-93.27"/>
      <tag k="highway" v="residential"/>
    </way>
    <relation id="30" version="2" timestamp="2026-01-03T10:00:03Z" uid="1" user="a" changeset="6">
      <member type="node" ref="10" role=""/>
    </relation>
  </modify>
  <delete>
    <node id="13" version="4" timestamp="2026-01-03T10:00:04Z" uid="1" user="a" changeset="7" visible="false"/>
    <node id="14" version="2" timestamp="2026-01-03T10:00:05Z" uid="1" user="a" changeset="7" lat="44.9" lon="-93.1"/>
  </delete>
</osmChange>`

func collect(t *testing.T, doc string) []TouchedPoint {
	t.Helper()
	var out []TouchedPoint
	for tp, err := range Decode(strings.NewReader(doc)) {
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, tp)
	}
	return out
}

func TestDecode_Sample(t *testing.T) {
	ts := func(s string) time.Time {
		v, _ := time.Parse(time.RFC3339, s)
		return v
	}
	want := []TouchedPoint{
		{Point: mercator.GeoPoint{Lat: 45.0, Lon: -93.0}, EntityType: osm.TypeNode, EntityID: 10, Kind: Create, Timestamp: ts("2026-01-03T10:00:01Z")},
		{Point: mercator.GeoPoint{Lat: 45.0, Lon: -93.0}, EntityType: osm.TypeWay, EntityID: 20, Kind: Modify, Timestamp: ts("2026-01-03T10:00:02Z")},
		{Point: mercator.GeoPoint{Lat: 44.98, Lon: -93.27}, EntityType: osm.TypeWay, EntityID: 20, Kind: Modify, Timestamp: ts("2026-01-03T10:00:02Z")},
		{Point: mercator.GeoPoint{Lat: 44.9, Lon: -93.1}, EntityType: osm.TypeNode, EntityID: 14, Kind: Delete, Timestamp: ts("2026-01-03T10:00:05Z")},
	}
	if diff := cmp.Diff(want, collect(t, sample)); diff != "" {
		t.Fatalf("points (-want +got):\n%s", diff)
	}
}

func TestDecode_Empty(t *testing.T) {
	if got := collect(t, `<osmChange version="0.6"/>`); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestDecode_StopEarly(t *testing.T) {
	n := 0
	for _, err := range Decode(strings.NewReader(sample)) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		break
	}
	if n != 1 {
		t.Fatalf("n=%d", n)
	}
}

func TestDecode_Malformed(t *testing.T) {
	doc := `<osmChange><create><node id="1" lat="1" lon="2"></create></osmChange>`
	var gotErr error
	for _, err := range Decode(strings.NewReader(doc)) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, ErrMalformed) {
		t.Fatalf("err=%v", gotErr)
	}
}
