package script

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hook.lua")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestLoadMissingFunction(t *testing.T) {
	path := writeScript(t, `osm2pgsql.version = "1.0.0"`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when process_tags is not defined")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Fatal("expected error for nonexistent script file")
	}
}

func TestApplyPassthrough(t *testing.T) {
	path := writeScript(t, `
		function process_tags(id, typ, tags)
			return tags
		end
	`)
	h, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer h.Close()

	in := map[string]string{"amenity": "cafe", "name": "Test"}
	out, err := h.Apply(1, "node", in)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["amenity"] != "cafe" || out["name"] != "Test" {
		t.Errorf("Apply returned %v, want passthrough of %v", out, in)
	}
}

func TestApplyDrop(t *testing.T) {
	path := writeScript(t, `
		function process_tags(id, typ, tags)
			if typ == "node" then
				return nil
			end
			return tags
		end
	`)
	h, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer h.Close()

	out, err := h.Apply(1, "node", map[string]string{"amenity": "cafe"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil (drop) for node, got %v", out)
	}

	out, err = h.Apply(2, "way", map[string]string{"highway": "residential"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["highway"] != "residential" {
		t.Errorf("expected way tags kept, got %v", out)
	}
}

func TestApplyRewrite(t *testing.T) {
	path := writeScript(t, `
		function process_tags(id, typ, tags)
			tags.class = "custom"
			return tags
		end
	`)
	h, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer h.Close()

	out, err := h.Apply(1, "node", map[string]string{"amenity": "cafe"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["class"] != "custom" || out["amenity"] != "cafe" {
		t.Errorf("Apply returned %v, want amenity kept and class added", out)
	}
}

func TestApplyByID(t *testing.T) {
	path := writeScript(t, `
		function process_tags(id, typ, tags)
			if id == 42 then
				return nil
			end
			return tags
		end
	`)
	h, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer h.Close()

	out, err := h.Apply(42, "node", map[string]string{"amenity": "cafe"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out != nil {
		t.Errorf("expected id 42 dropped, got %v", out)
	}

	out, err = h.Apply(43, "node", map[string]string{"amenity": "cafe"})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out == nil {
		t.Error("expected id 43 kept")
	}
}
