package queryplan

import (
	"fmt"
	"strings"

	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/domain"
)

// aggFuncs is the allow-list of aggregate functions a caller may request for
// the windowed variable join.
var aggFuncs = map[string]bool{
	"avg":   true,
	"sum":   true,
	"min":   true,
	"max":   true,
	"count": true,
}

// aggAlias names one aggregated-group join. Aliases are deterministic per
// group index so a plan is reproducible for the same metadata snapshot.
func aggAlias(index int) string {
	return fmt.Sprintf("agg%d", index)
}

// latestPerEntityJoin renders the "most recent row per entity within the
// lookback window" fragment for one aggregated group. Rows are ranked per
// entity by timestamp descending; ties on equal timestamps break by physical
// insertion order (ctid) so ranking is stable within a snapshot. The join is
// a LEFT JOIN: an entity missing data in this group must not suppress rows
// contributed by other groups.
func latestPerEntityJoin(b *builder, index int, schema string, group domain.AggregatedGroup, lookback string) (string, error) {
	qualified, err := db.QualifyTable(schema, group.TableName)
	if err != nil {
		return "", fmt.Errorf("aggregated group %d: %w", index, err)
	}
	columns, err := db.SafeIdentifierList(group.Columns)
	if err != nil {
		return "", fmt.Errorf("aggregated group %d: %w", index, err)
	}

	alias := aggAlias(index)
	cols := strings.Join(columns, ", ")

	return fmt.Sprintf(`
  LEFT JOIN (
    SELECT %[1]s AS id_entity_tmp, %[2]s
      FROM (
        SELECT %[1]s, %[2]s,
            ROW_NUMBER() OVER(PARTITION BY %[1]s ORDER BY %[3]s DESC, ctid DESC) AS rn
          FROM %[4]s
          WHERE %[3]s > now() - (%[5]s || ' hours')::interval
            AND %[3]s <= now()
      ) s_%[6]s
      WHERE rn = 1
  ) %[6]s
    ON ld.%[1]s = %[6]s.id_entity_tmp`,
		entityIDColumn, cols, timestampColumn, qualified, lookback, alias), nil
}

// windowedVariableJoin wraps the composed statement and left-joins one
// aggregate value per entity over the half-open interval [start, finish):
// a row exactly at start is included, a row exactly at finish is excluded.
// The value is exposed under the variable id as the result column.
func windowedVariableJoin(b *builder, inner string, variable domain.VariableQuery, aggFunc string, window domain.TimeRange) (string, *domain.VariableJoin, error) {
	fn := strings.ToLower(strings.TrimSpace(aggFunc))
	if !aggFuncs[fn] {
		return "", nil, fmt.Errorf("unsupported aggregation function %q", aggFunc)
	}

	qualified, err := db.QualifyTable(variable.Schema, variable.TableName)
	if err != nil {
		return "", nil, fmt.Errorf("variable %q: %w", variable.VariableID, err)
	}
	field, err := db.SafeIdentifier(variable.Field)
	if err != nil {
		return "", nil, fmt.Errorf("variable %q: %w", variable.VariableID, err)
	}
	resultColumn, err := db.QuoteIdentifier(variable.VariableID)
	if err != nil {
		return "", nil, fmt.Errorf("variable %q: %w", variable.VariableID, err)
	}

	sql := fmt.Sprintf(`SELECT *
  FROM (
      %s
  ) q_entity
    LEFT JOIN (
      SELECT %s AS id_entity_tmp,
          %s(%s) AS %s
        FROM %s
        WHERE %s >= %s
          AND %s < %s
        GROUP BY %s
    ) q_variable
      ON q_entity.%s = q_variable.id_entity_tmp`,
		inner,
		entityIDColumn,
		fn, field, resultColumn,
		qualified,
		timestampColumn, b.add(window.Start),
		timestampColumn, b.add(window.Finish),
		entityIDColumn,
		entityIDColumn)

	join := &domain.VariableJoin{
		TableName:  variable.TableName,
		Field:      variable.Field,
		AggFunc:    fn,
		Range:      window,
		ResultName: variable.VariableID,
	}
	return sql, join, nil
}
