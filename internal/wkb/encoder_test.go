package wkb

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodePoint(t *testing.T) {
	e := NewEncoderWithSRID(32, SRID3857)
	got := e.EncodePoint(1.5, -2.5)

	if len(got) != 25 {
		t.Fatalf("EncodePoint length = %d, want 25", len(got))
	}
	if got[0] != 0x01 {
		t.Errorf("byte order = %#x, want little-endian marker 0x01", got[0])
	}
	gotType := binary.LittleEndian.Uint32(got[1:5])
	if gotType != wkbPoint|wkbSRIDFlag {
		t.Errorf("type = %#x, want %#x", gotType, wkbPoint|wkbSRIDFlag)
	}
	gotSRID := binary.LittleEndian.Uint32(got[5:9])
	if gotSRID != SRID3857 {
		t.Errorf("SRID = %d, want %d", gotSRID, SRID3857)
	}
	gotLon := math.Float64frombits(binary.LittleEndian.Uint64(got[9:17]))
	gotLat := math.Float64frombits(binary.LittleEndian.Uint64(got[17:25]))
	if gotLon != 1.5 || gotLat != -2.5 {
		t.Errorf("coords = (%v, %v), want (1.5, -2.5)", gotLon, gotLat)
	}
}

func TestEncodeLineString(t *testing.T) {
	e := NewEncoderWithSRID(64, SRID4326)
	coords := []float64{0, 0, 1, 1, 2, 2}
	got := e.EncodeLineString(coords)

	wantLen := 13 + 3*16
	if len(got) != wantLen {
		t.Fatalf("EncodeLineString length = %d, want %d", len(got), wantLen)
	}
	gotType := binary.LittleEndian.Uint32(got[1:5])
	if gotType != wkbLineString|wkbSRIDFlag {
		t.Errorf("type = %#x, want %#x", gotType, wkbLineString|wkbSRIDFlag)
	}
	numPoints := binary.LittleEndian.Uint32(got[9:13])
	if numPoints != 3 {
		t.Errorf("numPoints = %d, want 3", numPoints)
	}
}

func TestEncodePolygon(t *testing.T) {
	e := NewEncoder(64)
	ring := []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}
	got := e.EncodePolygon(ring)

	gotType := binary.LittleEndian.Uint32(got[1:5])
	if gotType != wkbPolygon|wkbSRIDFlag {
		t.Errorf("type = %#x, want %#x", gotType, wkbPolygon|wkbSRIDFlag)
	}
	numRings := binary.LittleEndian.Uint32(got[9:13])
	if numRings != 1 {
		t.Errorf("numRings = %d, want 1", numRings)
	}
	numPoints := binary.LittleEndian.Uint32(got[13:17])
	if numPoints != 5 {
		t.Errorf("numPoints = %d, want 5", numPoints)
	}
}

func TestEncodeMultiPolygonEmpty(t *testing.T) {
	e := NewEncoder(16)
	if got := e.EncodeMultiPolygon(nil); got != nil {
		t.Errorf("EncodeMultiPolygon(nil) = %v, want nil", got)
	}
}

func TestEncodeMultiPolygon(t *testing.T) {
	e := NewEncoder(128)
	outer := []float64{0, 0, 4, 0, 4, 4, 0, 4, 0, 0}
	hole := []float64{1, 1, 2, 1, 2, 2, 1, 2, 1, 1}
	polys := [][][]float64{{outer, hole}}
	got := e.EncodeMultiPolygon(polys)

	gotType := binary.LittleEndian.Uint32(got[1:5])
	if gotType != wkbMultiPolygon|wkbSRIDFlag {
		t.Errorf("type = %#x, want %#x", gotType, wkbMultiPolygon|wkbSRIDFlag)
	}
	numPolys := binary.LittleEndian.Uint32(got[9:13])
	if numPolys != 1 {
		t.Errorf("numPolys = %d, want 1", numPolys)
	}
	// Embedded polygon: byte order + type (no SRID flag) + num rings
	embeddedType := binary.LittleEndian.Uint32(got[14:18])
	if embeddedType != wkbPolygon {
		t.Errorf("embedded polygon type = %#x, want %#x (no SRID flag)", embeddedType, wkbPolygon)
	}
	numRings := binary.LittleEndian.Uint32(got[18:22])
	if numRings != 2 {
		t.Errorf("numRings = %d, want 2 (outer + hole)", numRings)
	}
}

func TestEncodeMultiLineString(t *testing.T) {
	e := NewEncoder(128)
	line1 := []float64{0, 0, 1, 1}
	line2 := []float64{2, 2, 3, 3, 4, 4}
	got := e.EncodeMultiLineString([][]float64{line1, line2})

	gotType := binary.LittleEndian.Uint32(got[1:5])
	if gotType != wkbMultiLineString|wkbSRIDFlag {
		t.Errorf("type = %#x, want %#x", gotType, wkbMultiLineString|wkbSRIDFlag)
	}
	numLines := binary.LittleEndian.Uint32(got[9:13])
	if numLines != 2 {
		t.Errorf("numLines = %d, want 2", numLines)
	}
}

func TestEncodeMultiLineStringEmpty(t *testing.T) {
	e := NewEncoder(16)
	if got := e.EncodeMultiLineString(nil); got != nil {
		t.Errorf("EncodeMultiLineString(nil) = %v, want nil", got)
	}
}

func TestSRID(t *testing.T) {
	e := NewEncoderWithSRID(16, SRID3857)
	if e.SRID() != SRID3857 {
		t.Errorf("SRID() = %d, want %d", e.SRID(), SRID3857)
	}
}
