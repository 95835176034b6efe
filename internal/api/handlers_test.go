package api

import (
	"encoding/json"
	"testing"

	"github.com/metrogrid/cityql/internal/domain"
)

func TestScopeUpdateDecodesWireNames(t *testing.T) {
	body := `{"name":"Distrito Centro","dbschema":"centro","zoom":14,"status":0,"timezone":"Europe/Madrid","location":[40.4,-3.7]}`

	var update domain.ScopeUpdate
	if err := json.Unmarshal([]byte(body), &update); err != nil {
		t.Fatalf("failed to decode update: %v", err)
	}
	if update.Schema == nil || *update.Schema != "centro" {
		t.Fatalf("dbschema field did not decode, got %+v", update.Schema)
	}
	if update.Name == nil || *update.Name != "Distrito Centro" {
		t.Fatalf("unexpected name: %+v", update.Name)
	}
	if update.Zoom == nil || *update.Zoom != 14 {
		t.Fatalf("unexpected zoom: %+v", update.Zoom)
	}
	if update.Status == nil || *update.Status != 0 {
		t.Fatalf("unexpected status: %+v", update.Status)
	}
	if update.Timezone == nil || *update.Timezone != "Europe/Madrid" {
		t.Fatalf("unexpected timezone: %+v", update.Timezone)
	}
	if len(update.Location) != 2 || update.Location[0] != 40.4 {
		t.Fatalf("unexpected location: %+v", update.Location)
	}
}

func TestParseBBox(t *testing.T) {
	bbox, err := parseBBox("-3.8, 40.3, -3.5, 40.5")
	if err != nil {
		t.Fatalf("parseBBox failed: %v", err)
	}
	if bbox.West != -3.8 || bbox.South != 40.3 || bbox.East != -3.5 || bbox.North != 40.5 {
		t.Fatalf("unexpected bbox: %+v", bbox)
	}

	for _, raw := range []string{"", "1,2,3", "1,2,3,4,5", "a,b,c,d"} {
		if _, err := parseBBox(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
