// Package maps answers entity map queries: which devices exist where, with
// their latest raw values, rollups and optional windowed aggregates.
package maps

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/metrogrid/cityql/internal/domain"
	"github.com/metrogrid/cityql/internal/queryplan"
)

// Executor runs a composed plan against the storage engine. The service never
// retries; execution failures surface as domain.ErrExecutionFailure.
type Executor interface {
	Execute(ctx context.Context, plan domain.QueryPlan) ([]domain.Row, error)
}

// Service composes and executes entity map queries.
type Service struct {
	composer *queryplan.Composer
	executor Executor

	defaultLookbackHours int
}

// NewService creates a map query service. defaultLookbackHours applies when a
// request carries no lookback override.
func NewService(composer *queryplan.Composer, executor Executor, defaultLookbackHours int) *Service {
	return &Service{
		composer:             composer,
		executor:             executor,
		defaultLookbackHours: defaultLookbackHours,
	}
}

// Entities composes the query plan for the request and executes it, returning
// assembled rows for the formatters. Any metadata branch failure aborts the
// whole request; a partial plan is never executed.
func (s *Service) Entities(ctx context.Context, req queryplan.Request) ([]domain.Row, error) {
	if req.LookbackHours <= 0 {
		req.LookbackHours = s.defaultLookbackHours
	}

	plan, err := s.composer.Compose(ctx, req)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"scope":  req.Scope,
		"entity": req.Entity,
		"static": plan.Static,
		"joins":  len(plan.AggJoins),
	}).Debug("composed entity map plan")

	return s.executor.Execute(ctx, plan)
}
