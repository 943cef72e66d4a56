package geom

import (
	"sort"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/wkb"
)

// endpoint is one (node id, segment index, is-start) tuple, the unit
// get_wkb_multiline sorts and pairs to discover connectivity.
type endpoint struct {
	nodeID  int64
	segIdx  int
	isStart bool
}

// conn records, for one segment, the neighbouring segment index that
// connects at its start and at its end (noConn if none).
type conn struct {
	left, right int
}

const noConn = -1

// ChainMultiLine assembles a relation's (non-area) member ways into the
// minimal set of chains: a two-pass walk first emits open chains, then
// closed rings, exactly as get_wkb_multiline does. Ways are connected
// when they share an endpoint node id; a node id shared by more than two
// segment-ends breaks the chain there (ambiguous branching is left
// unresolved, matching the original).
func ChainMultiLine(segments []Segment) [][]model.Coordinate {
	n := len(segments)
	if n == 0 {
		return nil
	}

	var endpoints []endpoint
	for i, s := range segments {
		if len(s.Nodes) == 0 {
			continue
		}
		endpoints = append(endpoints, endpoint{s.Nodes[0], i, true})
		endpoints = append(endpoints, endpoint{s.Nodes[len(s.Nodes)-1], i, false})
	}
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].nodeID < endpoints[j].nodeID })

	conns := make([]conn, n)
	for i := range conns {
		conns[i] = conn{noConn, noConn}
	}

	i := 0
	for i < len(endpoints) {
		j := i + 1
		for j < len(endpoints) && endpoints[j].nodeID == endpoints[i].nodeID {
			j++
		}
		if j-i == 2 {
			a, b := endpoints[i], endpoints[i+1]
			linkEnds(conns, a, b)
		}
		i = j
	}

	visited := make([]bool, n)
	var chains [][]model.Coordinate

	// pass 1: open chains -- start from any segment whose one end has no
	// connection.
	for i := range segments {
		if visited[i] {
			continue
		}
		if conns[i].left == noConn || conns[i].right == noConn {
			chains = append(chains, walkChain(segments, conns, visited, i))
		}
	}
	// pass 2: whatever remains is a closed ring.
	for i := range segments {
		if visited[i] {
			continue
		}
		chains = append(chains, walkChain(segments, conns, visited, i))
	}

	return chains
}

func linkEnds(conns []conn, a, b endpoint) {
	if a.isStart {
		conns[a.segIdx].left = b.segIdx
	} else {
		conns[a.segIdx].right = b.segIdx
	}
	if b.isStart {
		conns[b.segIdx].left = a.segIdx
	} else {
		conns[b.segIdx].right = a.segIdx
	}
}

// walkChain follows connections from start in one direction (preferring
// the right/forward link) until it runs out or returns to start,
// concatenating each visited segment's coordinates in traversal order.
func walkChain(segments []Segment, conns []conn, visited []bool, start int) []model.Coordinate {
	cur := start
	prev := noConn
	var out []model.Coordinate
	out = append(out, segments[cur].Coords...)
	if conns[cur].right == noConn && conns[cur].left != noConn {
		// The free end is this segment's last node: walk it backwards so
		// the chain continues from its first node.
		reverseCoords(out)
	}
	visited[cur] = true

	for {
		next := conns[cur].right
		if next == prev || next == noConn {
			next = conns[cur].left
		}
		if next == noConn || next == prev || visited[next] {
			break
		}
		coords := segments[next].Coords
		if samePoint(out[len(out)-1], coords[0]) {
			out = append(out, coords[1:]...)
		} else if samePoint(out[len(out)-1], coords[len(coords)-1]) {
			rev := make([]model.Coordinate, len(coords))
			copy(rev, coords)
			reverseCoords(rev)
			out = append(out, rev[1:]...)
		} else {
			break
		}
		visited[next] = true
		prev = cur
		cur = next
		if next == start {
			break
		}
	}
	return out
}

// BuildMultiLineString chains segments and encodes the result as a WKB
// MultiLineString, splitting each chain at splitDist per get_wkb_split --
// the same length bound Line enforces on a single way applies here too,
// since a chained relation can easily run longer than any one member way.
func BuildMultiLineString(enc *wkb.Encoder, segments []Segment, splitDist float64) []byte {
	chains := ChainMultiLine(segments)
	var lines [][]float64
	for _, c := range chains {
		for _, piece := range SplitLineAt(c, splitDist) {
			lines = append(lines, flatten(piece))
		}
	}
	return append([]byte(nil), enc.EncodeMultiLineString(lines)...)
}
