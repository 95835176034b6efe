package format

import (
	"encoding/json"
	"testing"

	"github.com/metrogrid/cityql/internal/domain"
)

func TestFeatureCollectionFromRows(t *testing.T) {
	rows := []domain.Row{
		{
			"id_entity": "lamp1",
			"power":     12.5,
			"geometry":  `{"type":"Point","coordinates":[-3.7,40.4]}`,
		},
		{
			"id_entity": "lamp2",
			"geometry":  []byte(`{"type":"Point","coordinates":[-3.6,40.5]}`),
		},
		{
			"id_entity": "lamp3",
		},
	}

	fc := FeatureCollectionFromRows(rows)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 3 {
		t.Fatalf("unexpected collection: %+v", fc)
	}

	first := fc.Features[0]
	if first.Type != "Feature" {
		t.Fatalf("unexpected feature type %q", first.Type)
	}
	var geom struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(first.Geometry, &geom); err != nil || geom.Type != "Point" {
		t.Fatalf("expected point geometry, got %s (%v)", first.Geometry, err)
	}
	if first.Properties["id_entity"] != "lamp1" || first.Properties["power"] != 12.5 {
		t.Fatalf("unexpected properties: %v", first.Properties)
	}
	if _, ok := first.Properties["geometry"]; ok {
		t.Fatal("geometry must not leak into properties")
	}

	if string(fc.Features[1].Geometry) == "null" {
		t.Fatal("byte-slice geometry must be lifted")
	}
	if string(fc.Features[2].Geometry) != "null" {
		t.Fatalf("rows without geometry yield null, got %s", fc.Features[2].Geometry)
	}
}

func TestFeatureCollectionEmpty(t *testing.T) {
	fc := FeatureCollectionFromRows(nil)
	if fc.Features == nil || len(fc.Features) != 0 {
		t.Fatalf("expected empty but non-nil feature list, got %+v", fc.Features)
	}
}
