package pipeline

import (
	"context"
	"testing"

	"github.com/openstreetmap/osm2pgsql-go/internal/model"
)

func TestIsArea(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want bool
	}{
		{"explicit area=yes wins over key", map[string]string{"highway": "pedestrian", "area": "yes"}, true},
		{"explicit area=no wins over key", map[string]string{"building": "yes", "area": "no"}, false},
		{"highway is never an area", map[string]string{"highway": "primary"}, false},
		{"barrier is never an area", map[string]string{"barrier": "fence"}, false},
		{"railway is never an area", map[string]string{"railway": "rail"}, false},
		{"waterway=riverbank is an area", map[string]string{"waterway": "riverbank"}, true},
		{"waterway=stream is not an area", map[string]string{"waterway": "stream"}, false},
		{"building defaults to area", map[string]string{"building": "yes"}, true},
		{"landuse defaults to area", map[string]string{"landuse": "forest"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isArea(tt.tags)
			if got != tt.want {
				t.Errorf("isArea(%v) = %v, want %v", tt.tags, got, tt.want)
			}
		})
	}
}

func TestSend(t *testing.T) {
	out := make(chan model.Row, 1)
	row := model.Row{ID: 1, Class: "building"}
	if err := send(context.Background(), out, row); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	got := <-out
	if got.ID != row.ID {
		t.Errorf("got row ID %v, want %v", got.ID, row.ID)
	}
}

func TestSendCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan model.Row) // unbuffered, would block forever without ctx.Done
	if err := send(ctx, out, model.Row{}); err == nil {
		t.Fatal("expected error from canceled context")
	}
}

func TestApplyHookDisabled(t *testing.T) {
	e := &Extractor{}
	tags := map[string]string{"amenity": "cafe"}
	out, keep, err := e.applyHook(1, "node", tags)
	if err != nil {
		t.Fatalf("applyHook failed: %v", err)
	}
	if !keep {
		t.Fatal("expected keep=true when no hook configured")
	}
	if out["amenity"] != "cafe" {
		t.Errorf("applyHook modified tags without a hook: %v", out)
	}
}
