package geom

import "github.com/openstreetmap/osm2pgsql-go/internal/model"

// mergeRings joins open way segments that share an endpoint node id into
// longer chains, repeatedly, until no further merge is possible. Ported
// from omniscale-imposm3's geom/ring.go mergeRings, generalised from its
// *element.Way/Node pairs to this package's Segment (node id + resolved
// coordinate, kept in lock-step so geometry and connectivity never
// diverge).
func mergeRings(segments []Segment) []Segment {
	endpoints := make(map[int64]*Segment)

	rings := make([]*Segment, len(segments))
	for i := range segments {
		cp := segments[i]
		rings[i] = &cp
	}

	for _, ring := range rings {
		if len(ring.Nodes) < 2 {
			continue
		}
		left := ring.Nodes[0]
		right := ring.Nodes[len(ring.Nodes)-1]

		if orig, ok := endpoints[left]; ok {
			delete(endpoints, left)
			if left == orig.Nodes[len(orig.Nodes)-1] {
				orig.Nodes = append(orig.Nodes, ring.Nodes[1:]...)
				orig.Coords = append(orig.Coords, ring.Coords[1:]...)
			} else {
				reverseIDs(orig.Nodes)
				reverseCoords(orig.Coords)
				orig.Nodes = append(orig.Nodes, ring.Nodes[1:]...)
				orig.Coords = append(orig.Coords, ring.Coords[1:]...)
			}
			if rightRing, ok := endpoints[right]; ok && rightRing != orig {
				delete(endpoints, right)
				if right == rightRing.Nodes[0] {
					orig.Nodes = append(orig.Nodes, rightRing.Nodes[1:]...)
					orig.Coords = append(orig.Coords, rightRing.Coords[1:]...)
				} else {
					reverseIDs(rightRing.Nodes)
					reverseCoords(rightRing.Coords)
					orig.Nodes = append(orig.Nodes[:len(orig.Nodes)-1], rightRing.Nodes...)
					orig.Coords = append(orig.Coords[:len(orig.Coords)-1], rightRing.Coords...)
				}
				newRight := orig.Nodes[len(orig.Nodes)-1]
				endpoints[newRight] = orig
			} else {
				endpoints[right] = orig
			}
		} else if orig, ok := endpoints[right]; ok {
			delete(endpoints, right)
			if right == orig.Nodes[0] {
				orig.Nodes = append(append([]int64{}, ring.Nodes[:len(ring.Nodes)-1]...), orig.Nodes...)
				orig.Coords = append(append([]model.Coordinate{}, ring.Coords[:len(ring.Coords)-1]...), orig.Coords...)
			} else {
				reverseIDs(ring.Nodes)
				reverseCoords(ring.Coords)
				orig.Nodes = append(orig.Nodes[:len(orig.Nodes)-1], ring.Nodes...)
				orig.Coords = append(orig.Coords[:len(orig.Coords)-1], ring.Coords...)
			}
			endpoints[left] = orig
		} else {
			endpoints[left] = ring
			endpoints[right] = ring
		}
	}

	seen := map[*Segment]bool{}
	result := make([]Segment, 0, len(endpoints))
	for _, ring := range endpoints {
		if !seen[ring] {
			seen[ring] = true
			result = append(result, *ring)
		}
	}
	return result
}
