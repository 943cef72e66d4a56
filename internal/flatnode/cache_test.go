package flatnode

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

func TestCreateThenAppendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")

	c, err := Open(path, ModeCreate, true)
	if err != nil {
		t.Fatalf("open create: %v", err)
	}
	want := map[int64]model.Coordinate{
		1:       {Lon: 13.405, Lat: 52.52},
		5:       {Lon: -0.1276, Lat: 51.5072},
		1 << 21: {Lon: 2.3522, Lat: 48.8566}, // forces a second write-block
	}
	ids := []int64{1, 5, 1 << 21}
	for _, id := range ids {
		if err := c.Set(id, want[id]); err != nil {
			t.Fatalf("set %d: %v", id, err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	c2, err := Open(path, ModeAppend, true)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer c2.Close()

	for _, id := range ids {
		got, ok := c2.Get(id)
		if !ok {
			t.Fatalf("id %d: not found", id)
		}
		w := want[id]
		if math.Abs(got.Lon-w.Lon) > 1e-6 || math.Abs(got.Lat-w.Lat) > 1e-6 {
			t.Fatalf("id %d: got %+v want %+v", id, got, w)
		}
	}

	if _, ok := c2.Get(999); ok {
		t.Fatalf("expected id 999 to be absent")
	}
}

func TestAppendExpandsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	c, err := Open(path, ModeCreate, false)
	if err != nil {
		t.Fatalf("open create: %v", err)
	}
	if err := c.Set(0, model.Coordinate{Lon: 1, Lat: 1}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path, ModeAppend, false)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer c2.Close()

	big := int64(5_000_000)
	if err := c2.Set(big, model.Coordinate{Lon: 10, Lat: 20}); err != nil {
		t.Fatalf("set after expand: %v", err)
	}
	got, ok := c2.Get(big)
	if !ok || got.Lon != 10 || got.Lat != 20 {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestGetListOmitsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.bin")
	c, err := Open(path, ModeCreate, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Set(0, model.Coordinate{Lon: 1, Lat: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(3, model.Coordinate{Lon: 3, Lat: 4}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := Open(path, ModeAppend, true)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	got := c2.GetList([]int64{0, 1, 2, 3})
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(got), got)
	}
	if _, ok := got[1]; ok {
		t.Fatalf("id 1 should be absent")
	}
}
