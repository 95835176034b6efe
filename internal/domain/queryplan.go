package domain

import "time"

// BBox is a geographic bounding box filter: west, south, east, north (SRID 4326).
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

// TimeRange is a half-open interval [Start, Finish): a row exactly at Start is
// included, a row exactly at Finish is excluded.
type TimeRange struct {
	Start  time.Time
	Finish time.Time
}

// AggJoin is one "latest row per entity" left-join fragment of a query plan.
// Alias is deterministic per group index so recomposition against the same
// metadata snapshot yields identical SQL.
type AggJoin struct {
	Alias     string
	TableName string
	Columns   []string
}

// VariableJoin is the optional windowed-aggregate join of a query plan: one
// aggregate value per entity over a half-open time range, exposed under the
// variable id as the result column.
type VariableJoin struct {
	TableName  string
	Field      string
	AggFunc    string
	Range      TimeRange
	ResultName string
}

// QueryPlan is the in-memory description of the joins and filters needed to
// answer one entity/variable request. It is constructed per request, is
// side-effect free, and can be executed zero or more times.
type QueryPlan struct {
	// Static marks the fallback plan for entities with no dynamic metadata.
	Static bool

	Schema    string
	BaseTable string

	BBox     *BBox
	Filter   map[string]any
	AggJoins []AggJoin
	Variable *VariableJoin

	// Rendered statement: SQL with positional placeholders plus its args.
	SQL  string
	Args []any
}

// Row is one assembled result row with named columns, as handed to formatters.
// When a statement projects the same column name more than once (the join
// fragments each carry an id_entity_tmp, and two rollup tables may share a
// column name), the last occurrence wins.
type Row map[string]any
