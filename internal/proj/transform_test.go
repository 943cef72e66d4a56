package proj

import (
	"math"
	"testing"
)

func TestTransformLatLongIsNoop(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID4326)
	if err != nil {
		t.Fatal(err)
	}
	x, y := tr.Transform(13.4, 52.5)
	if x != 13.4 || y != 52.5 {
		t.Fatalf("got %v,%v", x, y)
	}
}

func TestTransformClampsAtPoleLatitude(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID3857)
	if err != nil {
		t.Fatal(err)
	}
	_, yAt := tr.Transform(0, maxMercLat)
	_, yBeyond := tr.Transform(0, 89.9)
	if math.Abs(yAt-yBeyond) > 1e-6 {
		t.Fatalf("expected clamp to %v, got yAt=%v yBeyond=%v", maxMercLat, yAt, yBeyond)
	}
}

func TestTransformOriginIsOrigin(t *testing.T) {
	tr, _ := NewTransformer(SRID4326, SRID3857)
	x, y := tr.Transform(0, 0)
	if math.Abs(x) > 1e-9 || math.Abs(y) > 1e-9 {
		t.Fatalf("expected (0,0) at equator/prime meridian, got %v,%v", x, y)
	}
}

func TestParseSRID(t *testing.T) {
	cases := map[string]int{"4326": SRID4326, "EPSG:3857": SRID3857}
	for s, want := range cases {
		got, err := ParseSRID(s)
		if err != nil || got != want {
			t.Fatalf("ParseSRID(%q) = %v, %v; want %v", s, got, err, want)
		}
	}
	if _, err := ParseSRID("2154"); err == nil {
		t.Fatal("expected error for unsupported SRID")
	}
}
