// Package format converts assembled result rows into their serialized
// representations. Formatters perform no business logic beyond row-to-shape
// conversion.
package format

import (
	"encoding/json"

	"github.com/metrogrid/cityql/internal/domain"
)

// geometryColumn is the derived GeoJSON column every plan projects.
const geometryColumn = "geometry"

// Feature is one GeoJSON feature.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// FeatureCollectionFromRows lifts the derived geometry column of each row into
// a feature's geometry; every remaining column becomes a property. Rows
// without geometry yield a null-geometry feature.
func FeatureCollectionFromRows(rows []domain.Row) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(rows))}

	for _, row := range rows {
		feature := Feature{Type: "Feature", Properties: make(map[string]any, len(row))}

		for name, value := range row {
			if name == geometryColumn {
				switch g := value.(type) {
				case string:
					feature.Geometry = json.RawMessage(g)
				case []byte:
					feature.Geometry = json.RawMessage(g)
				}
				continue
			}
			feature.Properties[name] = value
		}

		if feature.Geometry == nil {
			feature.Geometry = json.RawMessage("null")
		}
		fc.Features = append(fc.Features, feature)
	}
	return fc
}
