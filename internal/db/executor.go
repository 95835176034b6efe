package db

import (
	"context"
	"fmt"

	"github.com/metrogrid/cityql/internal/domain"
)

// PlanExecutor runs composed query plans against the storage engine and
// returns assembled rows with named columns. Execution errors are wrapped as
// domain.ErrExecutionFailure; the executor never retries.
type PlanExecutor struct {
	db DBTX
}

// NewPlanExecutor creates an executor over a pool or transaction.
func NewPlanExecutor(db DBTX) *PlanExecutor {
	return &PlanExecutor{db: db}
}

// Execute runs the plan's rendered statement and converts the result set into
// ordered rows. Column naming is consistent per request: every row carries the
// same field descriptors as produced by the plan.
func (e *PlanExecutor) Execute(ctx context.Context, plan domain.QueryPlan) ([]domain.Row, error) {
	rows, err := e.db.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecutionFailure, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	var result []domain.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrExecutionFailure, err)
		}
		row := make(domain.Row, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExecutionFailure, err)
	}

	return result, nil
}
