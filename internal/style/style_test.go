package style

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

func writeStyle(t *testing.T, body string) *Style {
	t.Helper()
	path := filepath.Join(t.TempDir(), "style.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load style: %v", err)
	}
	return s
}

func pairs(kv ...string) []model.Tag {
	out := make([]model.Tag, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		out = append(out, model.Tag{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestMatcherPriorityFullBeatsPrefix(t *testing.T) {
	s := writeStyle(t, `[
		{"keys":["highway*"],"values":{"": "extra"}},
		{"keys":["highway"],"values":{"primary": "main"}}
	]`)
	e, ok := s.findFlag("highway", "primary")
	if !ok {
		t.Fatal("expected match")
	}
	if !e.Flags.Has(model.FlagMain) {
		t.Fatalf("full match should win over prefix, got flags=%v", e.Flags)
	}
}

func TestPrefixRequiresStrictlyShorter(t *testing.T) {
	s := writeStyle(t, `[{"keys":["name*"],"values":{"": "extra"}}]`)
	if _, ok := s.findFlag("name", "x"); ok {
		t.Fatal("prefix equal to key must not match (strict inequality required)")
	}
	if _, ok := s.findFlag("name:en", "x"); !ok {
		t.Fatal("prefix shorter than key must match")
	}
}

func TestValueOnlyMatchesAnyKey(t *testing.T) {
	s := writeStyle(t, `[{"keys":[""],"values":{"skip_value": "skip"}}]`)
	e, ok := s.findFlag("whatever_key", "skip_value")
	if !ok {
		t.Fatal("expected value-only match regardless of key")
	}
	if !e.Flags.Has(model.FlagSkip) {
		t.Fatalf("expected skip flag, got %v", e.Flags)
	}
}

func TestDefaultFlagsFallback(t *testing.T) {
	s := writeStyle(t, `[
		{"keys":["shop"],"values":{"": "main"}},
		{"keys":[],"values":{"": "extra"}}
	]`)
	e, ok := s.findFlag("random_key", "random_value")
	if !ok {
		t.Fatal("expected default_flags to apply when nothing else matches")
	}
	if !e.Flags.Has(model.FlagExtra) {
		t.Fatalf("expected default flags {extra}, got %v", e.Flags)
	}
}

func TestSkipIsIdempotentAcrossOtherFlags(t *testing.T) {
	f, err := parseFlags([]string{"main", "skip", "name"})
	if err != nil {
		t.Fatal(err)
	}
	if f != model.FlagSkip {
		t.Fatalf("skip should override all other flags, got %v", f)
	}
}

func TestHouseTokenMapsToAddressPoint(t *testing.T) {
	f, err := parseFlags([]string{"house"})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Has(model.FlagAddressPoint) {
		t.Fatalf("house token should map to FlagAddressPoint, got %v", f)
	}
	if f.Has(model.FlagAddress) {
		t.Fatalf("house token should not also set FlagAddress, got %v", f)
	}
}

func TestClassifyAddressNormalization(t *testing.T) {
	s := writeStyle(t, `[{"keys":["addr:housenumber","addr:street"],"values":{"": "address"}}]`)
	obj := s.Classify(1, model.TypeNode, pairs("addr:housenumber", "12", "addr:street", "Main St"), model.Metadata{})
	if obj.Address["housenumber"] != "12" || obj.Address["street"] != "Main St" {
		t.Fatalf("unexpected address map: %+v", obj.Address)
	}
}

func TestClassifyAdminLevelDefaultsTo15(t *testing.T) {
	s := writeStyle(t, `[{"keys":["amenity"],"values":{"": "main"}}]`)
	obj := s.Classify(1, model.TypeNode, pairs("amenity", "restaurant", "name", "Foobar"), model.Metadata{})
	if obj.Admin != 15 {
		t.Fatalf("admin_level should default to 15 when absent, got %d", obj.Admin)
	}
	if len(obj.Mains) != 1 || obj.Mains[0].Class != "amenity" || obj.Mains[0].Value != "restaurant" {
		t.Fatalf("unexpected mains: %+v", obj.Mains)
	}
}

func TestClassifyAdminLevelCollapsesOutOfRange(t *testing.T) {
	s := writeStyle(t, `[{"keys":["amenity"],"values":{"": "main"}}]`)
	for _, v := range []string{"0", "-5", "99", "not-a-number"} {
		obj := s.Classify(1, model.TypeNode, pairs("amenity", "cafe", "admin_level", v), model.Metadata{})
		if obj.Admin != 15 {
			t.Errorf("admin_level=%q should collapse to 15, got %d", v, obj.Admin)
		}
	}
}

func TestClassifyMainFallbackOnlyWinsWhenNothingElseMatched(t *testing.T) {
	s := writeStyle(t, `[
		{"keys":["building"],"values":{"": "fallback,main"}},
		{"keys":["shop"],"values":{"": "main"}}
	]`)

	withShop := s.Classify(1, model.TypeWay, pairs("building", "yes", "shop", "bakery"), model.Metadata{})
	if len(withShop.Mains) != 1 || withShop.Mains[0].Class != "shop" {
		t.Fatalf("non-fallback should win, got mains=%+v", withShop.Mains)
	}

	onlyBuilding := s.Classify(2, model.TypeWay, pairs("building", "yes"), model.Metadata{})
	if len(onlyBuilding.Mains) != 1 || onlyBuilding.Mains[0].Class != "building" {
		t.Fatalf("fallback should win when nothing else matched, got mains=%+v", onlyBuilding.Mains)
	}
}

func TestClassifyEmitsOneRowPerNonFallbackMainTag(t *testing.T) {
	s := writeStyle(t, `[
		{"keys":["amenity"],"values":{"": "main"}},
		{"keys":["shop"],"values":{"": "main"}}
	]`)
	obj := s.Classify(1, model.TypeWay, pairs("amenity", "restaurant", "shop", "bakery"), model.Metadata{})
	if len(obj.Mains) != 2 {
		t.Fatalf("expected two main-tag rows, got %+v", obj.Mains)
	}
	if obj.Mains[0].Class != "amenity" || obj.Mains[1].Class != "shop" {
		t.Fatalf("unexpected emission order: %+v", obj.Mains)
	}
}

func TestClassifyPlaceDemotedOnBoundary(t *testing.T) {
	s := writeStyle(t, `[
		{"keys":["boundary"],"values":{"administrative": "main"}},
		{"keys":["place"],"values":{"": "main"}}
	]`)
	obj := s.Classify(1, model.TypeRelation, pairs("boundary", "administrative", "place", "city"), model.Metadata{})
	if len(obj.Mains) != 1 || obj.Mains[0].Class != "boundary" {
		t.Fatalf("boundary should win main slot, got %+v", obj.Mains)
	}
	if obj.Extra["place"] != "city" {
		t.Fatalf("place should be demoted to extra, got %+v", obj.Extra)
	}
	if !obj.Boundary {
		t.Fatal("boundary=administrative should imply the Boundary flag even without an explicit token")
	}
}
