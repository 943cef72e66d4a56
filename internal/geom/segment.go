// Package geom assembles point, line, polygon, multipolygon, and
// multilinestring geometries from OSM node/way/relation data, then
// hands them to internal/wkb for binary encoding.
//
// Grounded on original_source/osmium-builder.cpp (get_wkb_node,
// get_wkb_split, get_wkb_polygon, get_wkb_multipolygon,
// get_wkb_multiline, create_multipolygon) and, for the ring-merge
// algorithm multipolygon assembly needs, omniscale-imposm3's
// geom/ring.go (mergeRings) -- the teacher has no multi-way ring
// assembly of its own to adapt.
package geom

import "github.com/openstreetmap/osm2pgsql-go/internal/model"

// Segment is one way's node ids and resolved coordinates, the unit both
// the ring-merge and multiline-chaining algorithms operate on.
type Segment struct {
	WayID  int64
	Nodes  []int64
	Coords []model.Coordinate
}

// Closed reports whether a segment has at least four nodes and its first
// and last node coincide.
func (s Segment) Closed() bool {
	return len(s.Nodes) >= 4 && s.Nodes[0] == s.Nodes[len(s.Nodes)-1]
}

func reverseIDs(ids []int64) {
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func reverseCoords(c []model.Coordinate) {
	for i, j := 0, len(c)-1; i < j; i, j = i+1, j-1 {
		c[i], c[j] = c[j], c[i]
	}
}
