package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/domain"
)

type catalogRepository struct {
	db db.DBTX
}

// NewCatalogRepository creates a catalog accessor over the metadata schema.
func NewCatalogRepository(exec db.DBTX) CatalogRepository {
	return &catalogRepository{db: exec}
}

// RawVariables resolves the effective table per variable
// (COALESCE(variable.table_name, entity.table_name)) so overridden variables
// never leak the entity's own table. Ordering is fixed by variable id to keep
// composed plans reproducible.
func (r *catalogRepository) RawVariables(ctx context.Context, scope, entity string) ([]domain.RawVariableGroup, error) {
	rows, err := r.db.Query(ctx, `
		WITH q AS (
			SELECT vs.id_entity, s.dbschema,
			       COALESCE(vs.table_name, es.table_name) AS table_name,
			       vs.entity_field, vs.id_variable
			  FROM metadata.variables_scopes vs
			 INNER JOIN metadata.entities_scopes es
			    ON vs.id_entity = es.id_entity AND es.id_scope = vs.id_scope
			 INNER JOIN metadata.scopes s ON s.id_scope = vs.id_scope
			 WHERE vs.id_scope = $1 AND vs.id_entity = $2
			   AND vs.type <> 'aggregated'
		)
		SELECT id_entity, dbschema, table_name,
		       array_agg(entity_field ORDER BY id_variable) AS vars,
		       array_agg(id_variable ORDER BY id_variable) AS var_ids
		  FROM q
		 GROUP BY id_entity, dbschema, table_name
		 ORDER BY table_name`, scope, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw variables: %w", err)
	}
	defer rows.Close()

	var groups []domain.RawVariableGroup
	for rows.Next() {
		var (
			group  domain.RawVariableGroup
			fields []string
			ids    []string
		)
		if err := rows.Scan(&group.EntityID, &group.Schema, &group.TableName, &fields, &ids); err != nil {
			return nil, fmt.Errorf("failed to scan raw variable group: %w", err)
		}
		for i, field := range fields {
			group.Variables = append(group.Variables, domain.RawVariable{ID: ids[i], Field: field})
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *catalogRepository) AggregatedGroups(ctx context.Context, scope, entity string) ([]domain.AggregatedGroup, error) {
	rows, err := r.db.Query(ctx, `
		SELECT table_name,
		       array_agg(entity_field ORDER BY id_variable) AS columns
		  FROM metadata.variables_scopes
		 WHERE id_scope = $1 AND id_entity = $2 AND type = 'aggregated'
		 GROUP BY table_name
		 ORDER BY table_name`, scope, entity)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregated groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.AggregatedGroup
	for rows.Next() {
		var group domain.AggregatedGroup
		if err := rows.Scan(&group.TableName, &group.Columns); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *catalogRepository) ResolveVariable(ctx context.Context, scope, variable string) (domain.VariableQuery, bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT vs.id_variable, vs.var_name, vs.entity_field,
		       COALESCE(vs.table_name, es.table_name) AS table_name,
		       es.table_name AS entity_table_name,
		       s.dbschema
		  FROM metadata.variables_scopes vs
		 INNER JOIN metadata.entities_scopes es
		    ON vs.id_entity = es.id_entity AND es.id_scope = vs.id_scope
		 INNER JOIN metadata.scopes s ON s.id_scope = vs.id_scope
		 WHERE vs.id_scope = $1 AND vs.id_variable = $2
		 LIMIT 1`, scope, variable)

	var vq domain.VariableQuery
	if err := row.Scan(&vq.VariableID, &vq.Name, &vq.Field, &vq.TableName, &vq.EntityTable, &vq.Schema); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VariableQuery{}, false, nil
		}
		return domain.VariableQuery{}, false, fmt.Errorf("failed to resolve variable: %w", err)
	}
	return vq, true, nil
}

func (r *catalogRepository) EntityTable(ctx context.Context, scope, entity string) (string, bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT table_name
		  FROM metadata.entities_scopes
		 WHERE id_scope = $1 AND id_entity = $2
		 LIMIT 1`, scope, entity)

	var table string
	if err := row.Scan(&table); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to load entity table: %w", err)
	}
	return table, true, nil
}

// ScopeMetadata assembles the scope's catalog tree from the per-scope tables.
// LEFT JOINs keep categories without entities and entities without variables;
// ordering by id at every level keeps the tree deterministic.
func (r *catalogRepository) ScopeMetadata(ctx context.Context, scope string, includeDisabled bool) ([]domain.CategoryMetadata, error) {
	statusFilter := "AND s.status = 1"
	if includeDisabled {
		statusFilter = ""
	}

	rows, err := r.db.Query(ctx, `
		SELECT c.id_category, c.category_name, c.nodata, c.config,
		       e.id_entity, e.entity_name, e.table_name, e.mandatory, e.editable,
		       v.id_variable, v.var_name, v.entity_field, v.table_name,
		       v.type, v.var_units, v.var_agg, v.mandatory, v.editable
		  FROM metadata.scopes s
		  LEFT JOIN metadata.categories_scopes c ON c.id_scope = s.id_scope
		  LEFT JOIN metadata.entities_scopes e
		    ON e.id_category = c.id_category AND e.id_scope = c.id_scope
		  LEFT JOIN metadata.variables_scopes v
		    ON v.id_entity = e.id_entity AND v.id_scope = e.id_scope
		 WHERE s.id_scope = $1 `+statusFilter+`
		 ORDER BY c.id_category, e.id_entity, v.id_variable`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load scope metadata: %w", err)
	}
	defer rows.Close()

	var tree []domain.CategoryMetadata
	for rows.Next() {
		var (
			categoryID, categoryName       *string
			noData                         *bool
			categoryConfig                 []byte
			entityID, entityName, entTable *string
			entMandatory, entEditable      *bool
			variableID, varName, field     *string
			varTable, varType, varUnits    *string
			varAgg                         []string
			varMandatory, varEditable      *bool
		)
		if err := rows.Scan(
			&categoryID, &categoryName, &noData, &categoryConfig,
			&entityID, &entityName, &entTable, &entMandatory, &entEditable,
			&variableID, &varName, &field, &varTable,
			&varType, &varUnits, &varAgg, &varMandatory, &varEditable,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scope metadata row: %w", err)
		}

		// A scope without categories yields one all-NULL row.
		if categoryID == nil {
			continue
		}

		if len(tree) == 0 || tree[len(tree)-1].ID != *categoryID {
			category := domain.CategoryMetadata{}
			category.ID = *categoryID
			if categoryName != nil {
				category.Name = *categoryName
			}
			if noData != nil {
				category.NoData = *noData
			}
			category.Config = categoryConfig
			tree = append(tree, category)
		}
		category := &tree[len(tree)-1]

		if entityID == nil {
			continue
		}
		if len(category.Entities) == 0 || category.Entities[len(category.Entities)-1].ID != *entityID {
			entity := domain.EntityMetadata{}
			entity.ID = *entityID
			entity.CategoryID = category.ID
			if entityName != nil {
				entity.Name = *entityName
			}
			if entTable != nil {
				entity.TableName = *entTable
			}
			if entMandatory != nil {
				entity.Mandatory = *entMandatory
			}
			if entEditable != nil {
				entity.Editable = *entEditable
			}
			category.Entities = append(category.Entities, entity)
		}
		entity := &category.Entities[len(category.Entities)-1]

		if variableID == nil {
			continue
		}
		variable := domain.Variable{
			ID:        *variableID,
			EntityID:  entity.ID,
			TableName: varTable,
			AggFuncs:  varAgg,
		}
		if varName != nil {
			variable.Name = *varName
		}
		if field != nil {
			variable.Field = *field
		}
		if varType != nil {
			variable.Kind = domain.VariableKind(*varType)
		}
		if varUnits != nil {
			variable.Units = *varUnits
		}
		if varMandatory != nil {
			variable.Mandatory = *varMandatory
		}
		if varEditable != nil {
			variable.Editable = *varEditable
		}
		entity.Variables = append(entity.Variables, variable)
	}
	return tree, rows.Err()
}

func (r *catalogRepository) CatalogTree(ctx context.Context) ([]domain.CatalogCategory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id_category, e.id_entity, v.id_variable
		  FROM metadata.categories c
		  LEFT JOIN metadata.entities e ON e.id_category = c.id_category
		  LEFT JOIN metadata.variables v ON v.id_entity = e.id_entity
		 ORDER BY c.id_category, e.id_entity, v.id_variable`)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog tree: %w", err)
	}
	defer rows.Close()

	var (
		tree []domain.CatalogCategory
	)
	for rows.Next() {
		var (
			categoryID string
			entityID   *string
			variableID *string
		)
		if err := rows.Scan(&categoryID, &entityID, &variableID); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}

		if len(tree) == 0 || tree[len(tree)-1].ID != categoryID {
			tree = append(tree, domain.CatalogCategory{ID: categoryID})
		}
		category := &tree[len(tree)-1]

		if entityID == nil {
			continue
		}
		if len(category.Entities) == 0 || category.Entities[len(category.Entities)-1].ID != *entityID {
			category.Entities = append(category.Entities, domain.CatalogEntry{ID: *entityID})
		}
		entry := &category.Entities[len(category.Entities)-1]

		if variableID != nil {
			entry.Variables = append(entry.Variables, *variableID)
		}
	}
	return tree, rows.Err()
}
