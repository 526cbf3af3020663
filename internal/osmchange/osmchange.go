// Package osmchange streams the coordinates touched by an osmChange document.
package osmchange

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/paulmach/osm"

	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
)

type Kind string

const (
	Create Kind = "create"
	Modify Kind = "modify"
	Delete Kind = "delete"
)

// TouchedPoint is one coordinate a change refers to: a node's position, or the
// position of a way member when the diff carries node coordinates on <nd>.
type TouchedPoint struct {
	Point      mercator.GeoPoint
	EntityType osm.Type
	EntityID   int64
	Kind       Kind
	Timestamp  time.Time
}

var ErrMalformed = errors.New("osmchange: malformed document")

// Decode parses r in a single pass and yields touched points as they are read. Nodes
// without coordinates (deletions in most feeds) and relations are skipped. A decode
// error is yielded once and ends the sequence; stopping early stops reading r.
func Decode(r io.Reader) iter.Seq2[TouchedPoint, error] {
	return func(yield func(TouchedPoint, error) bool) {
		dec := xml.NewDecoder(r)
		var kind Kind
		for {
			tok, err := dec.Token()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(TouchedPoint{}, fmt.Errorf("%w: %v", ErrMalformed, err))
				return
			}

			switch el := tok.(type) {
			case xml.StartElement:
				switch el.Name.Local {
				case string(Create), string(Modify), string(Delete):
					kind = Kind(el.Name.Local)
				case "node":
					var n osm.Node
					if err := dec.DecodeElement(&n, &el); err != nil {
						yield(TouchedPoint{}, fmt.Errorf("%w: node: %v", ErrMalformed, err))
						return
					}
					if !hasAttr(el, "lat") || !hasAttr(el, "lon") {
						continue
					}
					tp := TouchedPoint{
						Point:      mercator.GeoPoint{Lat: n.Lat, Lon: n.Lon},
						EntityType: osm.TypeNode,
						EntityID:   int64(n.ID),
						Kind:       kind,
						Timestamp:  n.Timestamp,
					}
					if !yield(tp, nil) {
						return
					}
				case "way":
					var w osm.Way
					if err := dec.DecodeElement(&w, &el); err != nil {
						yield(TouchedPoint{}, fmt.Errorf("%w: way: %v", ErrMalformed, err))
						return
					}
					for _, nd := range w.Nodes {
						// nd coordinates are optional; 0,0 means absent.
						if nd.Lat == 0 && nd.Lon == 0 {
							continue
						}
						tp := TouchedPoint{
							Point:      mercator.GeoPoint{Lat: nd.Lat, Lon: nd.Lon},
							EntityType: osm.TypeWay,
							EntityID:   int64(w.ID),
							Kind:       kind,
							Timestamp:  w.Timestamp,
						}
						if !yield(tp, nil) {
							return
						}
					}
				case "relation":
					if err := dec.Skip(); err != nil {
						yield(TouchedPoint{}, fmt.Errorf("%w: relation: %v", ErrMalformed, err))
						return
					}
				}
			case xml.EndElement:
				switch el.Name.Local {
				case string(Create), string(Modify), string(Delete):
					kind = ""
				}
			}
		}
	}
}

func hasAttr(el xml.StartElement, name string) bool {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return true
		}
	}
	return false
}
