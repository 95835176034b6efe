package maps

import (
	"context"
	"errors"
	"testing"

	"github.com/metrogrid/cityql/internal/domain"
	"github.com/metrogrid/cityql/internal/queryplan"
)

type stubCatalog struct {
	raw []domain.RawVariableGroup
	agg []domain.AggregatedGroup
}

func (s *stubCatalog) RawVariables(ctx context.Context, scope, entity string) ([]domain.RawVariableGroup, error) {
	return s.raw, nil
}

func (s *stubCatalog) AggregatedGroups(ctx context.Context, scope, entity string) ([]domain.AggregatedGroup, error) {
	return s.agg, nil
}

func (s *stubCatalog) ResolveVariable(ctx context.Context, scope, variable string) (domain.VariableQuery, bool, error) {
	return domain.VariableQuery{}, false, nil
}

func (s *stubCatalog) EntityTable(ctx context.Context, scope, entity string) (string, bool, error) {
	return "", false, nil
}

type stubExecutor struct {
	plan domain.QueryPlan
	rows []domain.Row
	err  error
}

func (s *stubExecutor) Execute(ctx context.Context, plan domain.QueryPlan) ([]domain.Row, error) {
	s.plan = plan
	return s.rows, s.err
}

func testCatalog() *stubCatalog {
	return &stubCatalog{
		raw: []domain.RawVariableGroup{{
			EntityID:  "streetlight.lamp",
			Schema:    "city1",
			TableName: "streetlight_lamp",
			Variables: []domain.RawVariable{{ID: "streetlight.lamp.power", Field: "power"}},
		}},
		agg: []domain.AggregatedGroup{{TableName: "lamp_agg", Columns: []string{"energy"}}},
	}
}

func TestEntitiesAppliesDefaultLookback(t *testing.T) {
	executor := &stubExecutor{rows: []domain.Row{{"id_entity": "lamp1"}}}
	service := NewService(queryplan.NewComposer(testCatalog()), executor, 48)

	rows, err := service.Entities(context.Background(), queryplan.Request{
		Scope: "city1", Entity: "streetlight.lamp",
	})
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected executor rows, got %v", rows)
	}
	if len(executor.plan.Args) != 1 || executor.plan.Args[0] != 48 {
		t.Fatalf("expected default lookback arg, got %v", executor.plan.Args)
	}
}

func TestEntitiesKeepsExplicitLookback(t *testing.T) {
	executor := &stubExecutor{}
	service := NewService(queryplan.NewComposer(testCatalog()), executor, 48)

	if _, err := service.Entities(context.Background(), queryplan.Request{
		Scope: "city1", Entity: "streetlight.lamp", LookbackHours: 6,
	}); err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	if len(executor.plan.Args) != 1 || executor.plan.Args[0] != 6 {
		t.Fatalf("expected explicit lookback arg, got %v", executor.plan.Args)
	}
}

func TestEntitiesDoesNotExecutePartialPlans(t *testing.T) {
	executor := &stubExecutor{}
	service := NewService(queryplan.NewComposer(&stubCatalog{}), executor, 48)

	_, err := service.Entities(context.Background(), queryplan.Request{
		Scope: "city1", Entity: "unknown",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if executor.plan.SQL != "" {
		t.Fatal("composition failure must not reach the executor")
	}
}
