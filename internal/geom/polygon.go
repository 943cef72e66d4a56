package geom

import (
	"fmt"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/wkb"
)

// BuildPolygon encodes a single closed way as a WKB polygon with no
// holes, after checking closure. Grounded on get_wkb_polygon.
func BuildPolygon(enc *wkb.Encoder, ring []model.Coordinate) ([]byte, error) {
	if len(ring) < 4 || !samePoint(ring[0], ring[len(ring)-1]) {
		return nil, fmt.Errorf("ring is not closed")
	}
	return append([]byte(nil), enc.EncodePolygon(flatten(ring))...), nil
}

func samePoint(a, b model.Coordinate) bool {
	return a.Lon == b.Lon && a.Lat == b.Lat
}

// signedArea is twice the ring's signed area (shoelace formula); its
// sign gives winding direction and its magnitude orders rings by size
// for the outer/hole containment heuristic below.
func signedArea(ring []model.Coordinate) float64 {
	area := 0.0
	for i := 0; i < len(ring)-1; i++ {
		area += ring[i].Lon*ring[i+1].Lat - ring[i+1].Lon*ring[i].Lat
	}
	return area
}

// pointInRing is a standard ray-casting point-in-polygon test, used to
// decide which outer ring a candidate inner (hole) ring belongs to.
func pointInRing(p model.Coordinate, ring []model.Coordinate) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Lat > p.Lat) != (pj.Lat > p.Lat) {
			x := (pj.Lon-pi.Lon)*(p.Lat-pi.Lat)/(pj.Lat-pi.Lat) + pi.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

// BuildMultipolygon assembles a relation's outer and inner way segments
// into a multipolygon: each segment set is merged into closed rings
// (mergeRings), then every inner ring is assigned to the smallest outer
// ring that contains one of its points. Grounded on
// create_multipolygon / get_wkb_multipolygon; a relation whose outer
// ways don't close into at least one ring returns an error the caller
// (internal/pipeline) wraps as model.GeometryInvalid and translates into
// a skipped row.
func BuildMultipolygon(enc *wkb.Encoder, outer, inner []Segment) ([]byte, error) {
	outerRings := mergeRings(outer)
	innerRings := mergeRings(inner)

	var closedOuter []Segment
	for _, r := range outerRings {
		if r.Closed() {
			closedOuter = append(closedOuter, r)
		}
	}
	if len(closedOuter) == 0 {
		return nil, fmt.Errorf("no closed outer ring")
	}

	polys := make([][][]float64, len(closedOuter))
	for i, o := range closedOuter {
		polys[i] = [][]float64{flatten(o.Coords)}
	}

	for _, hole := range innerRings {
		if !hole.Closed() || len(hole.Coords) == 0 {
			continue
		}
		best := -1
		bestArea := 0.0
		for i, o := range closedOuter {
			if pointInRing(hole.Coords[0], o.Coords) {
				a := abs(signedArea(o.Coords))
				if best == -1 || a < bestArea {
					best = i
					bestArea = a
				}
			}
		}
		if best >= 0 {
			polys[best] = append(polys[best], flatten(hole.Coords))
		}
	}

	return append([]byte(nil), enc.EncodeMultiPolygon(polys)...), nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
