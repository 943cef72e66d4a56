package geom

import (
	"math"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/wkb"
)

func dist(a, b model.Coordinate) float64 {
	return math.Hypot(b.Lon-a.Lon, b.Lat-a.Lat)
}

// interpolate returns the point a fraction t (0..1) of the way from a to b.
func interpolate(a, b model.Coordinate, t float64) model.Coordinate {
	return model.Coordinate{
		Lon: a.Lon + (b.Lon-a.Lon)*t,
		Lat: a.Lat + (b.Lat-a.Lat)*t,
	}
}

// SplitLine is SplitLineAt with splitting disabled (maxDist 0): it
// returns the whole line as a single piece.
func SplitLine(coords []model.Coordinate) [][]model.Coordinate {
	return SplitLineAt(coords, 0)
}

// SplitLineAt breaks coords into consecutive pieces no longer than
// maxDist (in the working projection's units), inserting an interpolated
// point at each split so adjacent pieces share an endpoint. maxDist <= 0
// disables splitting and returns the whole line as a single piece. Ported
// from get_wkb_split's cumulative-length walk, including its
// degenerate-segment skip (a repeated point contributes zero length and
// is dropped) and its trailing-remainder check (a final partial piece of
// a single point is never emitted on its own).
func SplitLineAt(coords []model.Coordinate, maxDist float64) [][]model.Coordinate {
	if len(coords) < 2 {
		return nil
	}
	if maxDist <= 0 {
		return [][]model.Coordinate{coords}
	}

	var pieces [][]model.Coordinate
	current := []model.Coordinate{coords[0]}
	curLen := 0.0

	for i := 1; i < len(coords); i++ {
		prev := coords[i-1]
		next := coords[i]
		segLen := dist(prev, next)
		if segLen == 0 {
			continue // degenerate segment, original skips it
		}

		remaining := segLen
		from := prev
		for curLen+remaining > maxDist {
			need := maxDist - curLen
			frac := need / remaining
			split := interpolate(from, next, frac)
			current = append(current, split)
			pieces = append(pieces, current)
			current = []model.Coordinate{split}
			curLen = 0
			from = split
			remaining = dist(from, next)
			segLen = remaining
		}
		current = append(current, next)
		curLen += remaining
	}

	if len(current) > 1 {
		pieces = append(pieces, current)
	}
	return pieces
}

// BuildLineStrings encodes one WKB LineString per piece.
func BuildLineStrings(enc *wkb.Encoder, pieces [][]model.Coordinate) [][]byte {
	out := make([][]byte, 0, len(pieces))
	for _, piece := range pieces {
		flat := flatten(piece)
		wkbBytes := enc.EncodeLineString(flat)
		out = append(out, append([]byte(nil), wkbBytes...))
	}
	return out
}

func flatten(coords []model.Coordinate) []float64 {
	out := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		out = append(out, c.Lon, c.Lat)
	}
	return out
}
