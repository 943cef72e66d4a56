package geom

import (
	"testing"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
	"github.com/openstreetmap/osm2pgsql-go/internal/proj"
)

func newAssembler(t *testing.T, splitDist float64) *Assembler {
	t.Helper()
	tr, err := proj.NewTransformer(proj.SRID4326, proj.SRID4326)
	if err != nil {
		t.Fatal(err)
	}
	return New(tr, splitDist)
}

func TestSplitLineRespectsMaxDistance(t *testing.T) {
	coords := []model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 10, Lat: 0}}
	pieces := SplitLineAt(coords, 3)
	for _, p := range pieces {
		for i := 1; i < len(p); i++ {
			if d := dist(p[i-1], p[i]); d > 3+1e-9 {
				t.Fatalf("piece segment length %v exceeds max 3", d)
			}
		}
	}
	// consecutive pieces must share an endpoint
	for i := 1; i < len(pieces); i++ {
		if !samePoint(pieces[i-1][len(pieces[i-1])-1], pieces[i][0]) {
			t.Fatalf("pieces %d and %d do not share an endpoint", i-1, i)
		}
	}
}

func TestSplitLineNoSplitWhenUnderLimit(t *testing.T) {
	coords := []model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}}
	pieces := SplitLineAt(coords, 100)
	if len(pieces) != 1 || len(pieces[0]) != 2 {
		t.Fatalf("expected single unsplit piece, got %+v", pieces)
	}
}

func TestBuildPolygonRejectsUnclosedRing(t *testing.T) {
	a := newAssembler(t, 0)
	_, err := a.Polygon([]model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}})
	if err == nil {
		t.Fatal("expected error for unclosed ring")
	}
}

func TestBuildMultipolygonAssignsHoleToContainingOuter(t *testing.T) {
	a := newAssembler(t, 0)
	outer := []Segment{{
		WayID: 1,
		Nodes: []int64{1, 2, 3, 4, 1},
		Coords: []model.Coordinate{
			{Lon: 0, Lat: 0}, {Lon: 10, Lat: 0}, {Lon: 10, Lat: 10}, {Lon: 0, Lat: 10}, {Lon: 0, Lat: 0},
		},
	}}
	inner := []Segment{{
		WayID: 2,
		Nodes: []int64{5, 6, 7, 8, 5},
		Coords: []model.Coordinate{
			{Lon: 2, Lat: 2}, {Lon: 4, Lat: 2}, {Lon: 4, Lat: 4}, {Lon: 2, Lat: 4}, {Lon: 2, Lat: 2},
		},
	}}
	wkb, err := a.Multipolygon(outer, inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wkb) == 0 {
		t.Fatal("expected non-empty WKB")
	}
}

func TestChainMultiLineJoinsOpenChain(t *testing.T) {
	segs := []Segment{
		{WayID: 1, Nodes: []int64{1, 2}, Coords: []model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}}},
		{WayID: 2, Nodes: []int64{2, 3}, Coords: []model.Coordinate{{Lon: 1, Lat: 0}, {Lon: 2, Lat: 0}}},
	}
	chains := ChainMultiLine(segs)
	if len(chains) != 1 {
		t.Fatalf("expected a single chained line, got %d", len(chains))
	}
	if len(chains[0]) != 3 {
		t.Fatalf("expected 3 points after chaining, got %d: %+v", len(chains[0]), chains[0])
	}
}

func TestChainMultiLineTerminatesClosedRing(t *testing.T) {
	segs := []Segment{
		{WayID: 1, Nodes: []int64{1, 2}, Coords: []model.Coordinate{{Lon: 0, Lat: 0}, {Lon: 1, Lat: 0}}},
		{WayID: 2, Nodes: []int64{2, 3}, Coords: []model.Coordinate{{Lon: 1, Lat: 0}, {Lon: 1, Lat: 1}}},
		{WayID: 3, Nodes: []int64{3, 1}, Coords: []model.Coordinate{{Lon: 1, Lat: 1}, {Lon: 0, Lat: 0}}},
	}
	chains := ChainMultiLine(segs)
	if len(chains) != 1 {
		t.Fatalf("expected a single ring, got %d chains", len(chains))
	}
	if !samePoint(chains[0][0], chains[0][len(chains[0])-1]) {
		t.Fatalf("expected ring to close, got %+v", chains[0])
	}
}
