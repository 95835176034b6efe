package domain

import "encoding/json"

// VariableKind distinguishes variables read live from a lastdata table from
// variables pre-rolled-up into a separate aggregate table.
type VariableKind string

const (
	VariableRaw        VariableKind = "raw"
	VariableAggregated VariableKind = "aggregated"
)

// Category is the top level of the per-scope catalog hierarchy.
type Category struct {
	ID      string          `json:"id_category"`
	Name    string          `json:"category_name"`
	ScopeID string          `json:"id_scope,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
	NoData  bool            `json:"nodata"`
}

// Entity describes one physical device type within a category.
type Entity struct {
	ID         string `json:"id_entity"`
	Name       string `json:"entity_name"`
	CategoryID string `json:"id_category"`
	TableName  string `json:"table_name"`
	Mandatory  bool   `json:"mandatory"`
	Editable   bool   `json:"editable"`
}

// Variable describes one measured value of an entity. TableName overrides the
// entity's own table when set; the effective storage table is always
// Variable.TableName falling back to Entity.TableName.
type Variable struct {
	ID         string       `json:"id_variable"`
	Name       string       `json:"var_name"`
	EntityID   string       `json:"id_entity"`
	Kind       VariableKind `json:"type"`
	TableName  *string      `json:"table_name,omitempty"`
	Field      string       `json:"entity_field"`
	Units      string       `json:"var_units,omitempty"`
	Thresholds []float64    `json:"var_thresholds,omitempty"`
	AggFuncs   []string     `json:"var_agg,omitempty"`
	Mandatory  bool         `json:"mandatory"`
	Editable   bool         `json:"editable"`
}

// RawVariable is one raw-variable column of an entity as resolved for a scope.
type RawVariable struct {
	ID    string
	Field string
}

// RawVariableGroup carries the raw variables of an entity that share one
// effective storage table. Groups are returned in catalog order.
type RawVariableGroup struct {
	EntityID  string
	Schema    string
	TableName string
	Variables []RawVariable
}

// AggregatedGroup carries the aggregate columns of an entity that live in one
// rollup table and are joined by "most recent row per entity".
type AggregatedGroup struct {
	TableName string
	Columns   []string
}

// VariableQuery is a variable resolved to its physical location: the effective
// table (variable override or entity table) plus the source column.
type VariableQuery struct {
	VariableID  string
	Name        string
	Field       string
	Schema      string
	TableName   string
	EntityTable string
}

// EntityMetadata is an entity with its variables, as presented in the
// per-scope metadata view.
type EntityMetadata struct {
	Entity
	Variables []Variable `json:"variables"`
}

// CategoryMetadata is one category of the per-scope metadata view. Entity and
// variable sets are permission-filtered per caller; categories themselves stay
// even when every entity filters away.
type CategoryMetadata struct {
	Category
	Entities []EntityMetadata `json:"entities"`
}

// CatalogEntry is one entity of the full catalog tree with its variable ids,
// used when seeding the permission graph for a new scope.
type CatalogEntry struct {
	ID        string
	Variables []string
}

// CatalogCategory is one category of the full catalog tree.
type CatalogCategory struct {
	ID       string
	Entities []CatalogEntry
}
