package repository

import (
	"context"

	"github.com/metrogrid/cityql/internal/domain"
)

// CatalogRepository reads the static description of tenants, categories,
// entities and variables. All lookups are pure reads; unknown entities or
// variables yield empty results, not errors, signalling "not metadata-driven".
type CatalogRepository interface {
	// RawVariables returns the entity's non-aggregated variables for a
	// scope, grouped by effective storage table.
	RawVariables(ctx context.Context, scope, entity string) ([]domain.RawVariableGroup, error)

	// AggregatedGroups returns the entity's aggregated variables grouped by
	// rollup table, in deterministic catalog order.
	AggregatedGroups(ctx context.Context, scope, entity string) ([]domain.AggregatedGroup, error)

	// ResolveVariable resolves a variable to its physical table and source
	// column. ok is false when the scope does not know the variable.
	ResolveVariable(ctx context.Context, scope, variable string) (domain.VariableQuery, bool, error)

	// EntityTable returns the entity's literal table, the static fallback
	// for entities with no variable metadata.
	EntityTable(ctx context.Context, scope, entity string) (string, bool, error)

	// CatalogTree returns the full category/entity/variable catalog, used
	// when seeding the permission graph for a new scope.
	CatalogTree(ctx context.Context) ([]domain.CatalogCategory, error)

	// ScopeMetadata returns the scope's provisioned catalog as a
	// category/entity/variable tree, unfiltered by permissions. Disabled
	// scopes yield no rows unless includeDisabled is set.
	ScopeMetadata(ctx context.Context, scope string, includeDisabled bool) ([]domain.CategoryMetadata, error)
}

// ScopeViewRow is a scope row with the references needed to assemble the
// hierarchical view.
type ScopeViewRow struct {
	View     domain.ScopeView
	Multi    bool
	ChildIDs []string
}

// ScopeRepository reads and mutates scope (tenant) rows.
type ScopeRepository interface {
	// ScopeViews loads the given scopes with derived attributes, joined
	// against the permission graph read sets for the given user.
	ScopeViews(ctx context.Context, ids []string, userID int64) ([]ScopeViewRow, error)

	// ListRootScopes lists enabled root-level scopes with the derived
	// n_cities count. multi filters to aggregators (true) or single
	// scopes (false); nil lists both.
	ListRootScopes(ctx context.Context, userID int64, multi *bool) ([]ScopeViewRow, error)

	// ReducedScopes lists every scope with just the attributes needed for
	// slug collision probing.
	ReducedScopes(ctx context.Context) ([]domain.Scope, error)

	// Insert creates the scope row and, for non-multi scopes, its physical
	// schema, atomically.
	Insert(ctx context.Context, scope domain.Scope, createSchema bool) error

	Update(ctx context.Context, id string, changes domain.ScopeUpdate) error

	// Delete removes the scope and its children. Returns false when no row
	// matched.
	Delete(ctx context.Context, id string) (bool, error)
}
