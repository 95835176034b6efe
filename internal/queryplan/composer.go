// Package queryplan composes executable query plans from catalog metadata.
// Table and column names are runtime data here, never code: every identifier
// is validated before it is embedded in SQL text, and every value travels as
// a positional parameter.
package queryplan

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/domain"
)

// Fixed physical columns of lastdata and rollup tables.
const (
	entityIDColumn  = "id_entity"
	geometryColumn  = "position"
	timestampColumn = `"TimeInstant"`
)

// lastdataSuffix is appended to an entity's base table to address its
// live-position table.
const lastdataSuffix = "_lastdata"

// Catalog is the metadata accessor the composer reads. Lookups are pure and
// return empty results for unknown entities or variables.
type Catalog interface {
	RawVariables(ctx context.Context, scope, entity string) ([]domain.RawVariableGroup, error)
	AggregatedGroups(ctx context.Context, scope, entity string) ([]domain.AggregatedGroup, error)
	ResolveVariable(ctx context.Context, scope, variable string) (domain.VariableQuery, bool, error)
	EntityTable(ctx context.Context, scope, entity string) (string, bool, error)
}

// Request describes one entity/variable map query.
type Request struct {
	Scope  string
	Entity string

	// Variable and Range select the optional windowed-aggregate join.
	// AggFunc must be one of the allow-listed aggregate functions.
	Variable string
	AggFunc  string
	Range    *domain.TimeRange

	BBox   *domain.BBox
	Filter map[string]any

	// LookbackHours bounds the "latest row per entity" window of every
	// aggregated-variable join.
	LookbackHours int
}

// Composer builds query plans from catalog metadata. It performs no blocking
// work itself beyond the concurrent catalog reads; once inputs have arrived,
// composition is pure data transformation.
type Composer struct {
	catalog Catalog
}

// NewComposer creates a composer over the catalog accessor.
func NewComposer(catalog Catalog) *Composer {
	return &Composer{catalog: catalog}
}

// Compose fetches the request's metadata concurrently (fail-fast: any branch
// error aborts the whole composition) and assembles the plan. Composing the
// same request against unchanged metadata yields byte-identical SQL.
func (c *Composer) Compose(ctx context.Context, req Request) (domain.QueryPlan, error) {
	var (
		rawGroups []domain.RawVariableGroup
		aggGroups []domain.AggregatedGroup
		variable  domain.VariableQuery
		varOK     bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawGroups, err = c.catalog.RawVariables(gctx, req.Scope, req.Entity)
		return err
	})
	g.Go(func() error {
		var err error
		aggGroups, err = c.catalog.AggregatedGroups(gctx, req.Scope, req.Entity)
		return err
	})
	if req.Variable != "" {
		g.Go(func() error {
			var err error
			variable, varOK, err = c.catalog.ResolveVariable(gctx, req.Scope, req.Variable)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return domain.QueryPlan{}, err
	}

	if len(rawGroups) == 0 {
		// The entity carries no dynamic metadata: fall back to a static
		// listing of its literal table.
		return c.composeStatic(ctx, req)
	}

	if req.Variable != "" && !varOK {
		return domain.QueryPlan{}, fmt.Errorf("variable %q in scope %q: %w", req.Variable, req.Scope, domain.ErrNotFound)
	}

	return compose(req, rawGroups[0], aggGroups, variable)
}

// composeStatic builds the fallback plan: every column of the entity's own
// table plus the derived geometry. A missing static table is terminal.
func (c *Composer) composeStatic(ctx context.Context, req Request) (domain.QueryPlan, error) {
	table, ok, err := c.catalog.EntityTable(ctx, req.Scope, req.Entity)
	if err != nil {
		return domain.QueryPlan{}, err
	}
	if !ok {
		return domain.QueryPlan{}, fmt.Errorf("no entity or variables for the sent parameters: %w", domain.ErrNotFound)
	}

	// Static tables live in the scope's own schema, which shares the scope
	// identifier.
	qualified, err := db.QualifyTable(req.Scope, table)
	if err != nil {
		return domain.QueryPlan{}, err
	}

	return domain.QueryPlan{
		Static:    true,
		Schema:    req.Scope,
		BaseTable: table,
		SQL: fmt.Sprintf("SELECT *, ST_AsGeoJSON(%s) AS geometry FROM %s",
			geometryColumn, qualified),
	}, nil
}

// compose renders the dynamic plan: base projection from the lastdata table,
// one latest-per-entity join per aggregated group, and the optional windowed
// variable join.
func compose(req Request, raw domain.RawVariableGroup, aggGroups []domain.AggregatedGroup, variable domain.VariableQuery) (domain.QueryPlan, error) {
	b := newBuilder()

	lastdata, err := db.QualifyTable(raw.Schema, raw.TableName+lastdataSuffix)
	if err != nil {
		return domain.QueryPlan{}, err
	}

	columns := []string{entityIDColumn,
		fmt.Sprintf("ST_AsGeoJSON(%s) AS geometry", geometryColumn),
		timestampColumn}
	for _, v := range raw.Variables {
		field, err := db.SafeIdentifier(v.Field)
		if err != nil {
			return domain.QueryPlan{}, fmt.Errorf("raw variable %q: %w", v.ID, err)
		}
		columns = append(columns, field)
	}

	where, err := baseFilters(b, req.BBox, req.Filter)
	if err != nil {
		return domain.QueryPlan{}, err
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT *\n  FROM (\n    SELECT %s\n      FROM %s\n      WHERE TRUE%s\n  ) ld",
		strings.Join(columns, ", "), lastdata, where)

	plan := domain.QueryPlan{
		Schema:    raw.Schema,
		BaseTable: raw.TableName,
		BBox:      req.BBox,
		Filter:    copyFilter(req.Filter),
	}

	// Lookback is shared by every aggregated join; one placeholder keeps
	// recomposition deterministic.
	var lookback string
	if len(aggGroups) > 0 {
		lookback = b.add(req.LookbackHours)
	}

	for i, group := range aggGroups {
		fragment, err := latestPerEntityJoin(b, i, raw.Schema, group, lookback)
		if err != nil {
			return domain.QueryPlan{}, err
		}
		sql.WriteString(fragment)
		plan.AggJoins = append(plan.AggJoins, domain.AggJoin{
			Alias:     aggAlias(i),
			TableName: group.TableName,
			Columns:   append([]string(nil), group.Columns...),
		})
	}

	if req.Variable != "" && req.Range != nil {
		wrapped, join, err := windowedVariableJoin(b, sql.String(), variable, req.AggFunc, *req.Range)
		if err != nil {
			return domain.QueryPlan{}, err
		}
		sql.Reset()
		sql.WriteString(wrapped)
		plan.Variable = join
	}

	plan.SQL = sql.String()
	plan.Args = b.args
	return plan, nil
}

// baseFilters renders the bounding-box and attribute predicates of the base
// projection. Filter keys are embedded sorted so plans stay reproducible.
func baseFilters(b *builder, bbox *domain.BBox, filter map[string]any) (string, error) {
	var sb strings.Builder

	if bbox != nil {
		fmt.Fprintf(&sb, " AND %s && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
			geometryColumn, b.add(bbox.West), b.add(bbox.South), b.add(bbox.East), b.add(bbox.North))
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		column, err := db.QuoteIdentifier(key)
		if err != nil {
			return "", fmt.Errorf("attribute filter: %w", err)
		}
		fmt.Fprintf(&sb, " AND %s = %s", column, b.add(filter[key]))
	}

	return sb.String(), nil
}

func copyFilter(filter map[string]any) map[string]any {
	if filter == nil {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		out[k] = v
	}
	return out
}

// builder accumulates positional args, mirroring the statement text order.
type builder struct {
	args []any
}

func newBuilder() *builder {
	return &builder{args: make([]any, 0)}
}

func (b *builder) add(value any) string {
	b.args = append(b.args, value)
	return fmt.Sprintf("$%d", len(b.args))
}
