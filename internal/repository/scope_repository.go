package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/domain"
)

type scopeRepository struct {
	conn *db.Connection
}

// NewScopeRepository creates a scope repository over the metadata schema.
func NewScopeRepository(conn *db.Connection) ScopeRepository {
	return &scopeRepository{conn: conn}
}

const scopeViewColumns = `
	s.id_scope, s.scope_name, s.dbschema, s.parent_id_scope,
	ARRAY[ST_Y(s.geom), ST_X(s.geom)] AS location,
	s.zoom, s.timezone,
	array(SELECT DISTINCT c.id_category
	        FROM metadata.categories_scopes c
	       WHERE s.status = 1 AND c.id_scope = s.id_scope
	       ORDER BY c.id_category) AS categories,
	(s.parent_id_scope IS NULL) AS multi,
	array(SELECT sc.id_scope FROM metadata.scopes sc
	       WHERE sc.parent_id_scope = s.id_scope
	       ORDER BY sc.id_scope) AS childs`

// ScopeViews loads scopes by id. The join against users_graph enforces the
// read grant on the scope node itself; category-level filtering is the
// resolver's job.
func (r *scopeRepository) ScopeViews(ctx context.Context, ids []string, userID int64) ([]ScopeViewRow, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+scopeViewColumns+`
		  FROM metadata.scopes s
		  JOIN public.users_graph ug
		    ON s.id_scope = ug.name AND $2 = ANY(ug.read_users)
		 WHERE s.id_scope = ANY($1)
		 ORDER BY s.id_scope`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scope views: %w", err)
	}
	defer rows.Close()

	return collectScopeViews(rows)
}

func (r *scopeRepository) ListRootScopes(ctx context.Context, userID int64, multi *bool) ([]ScopeViewRow, error) {
	var filter string
	if multi != nil {
		if *multi {
			filter = "AND s.parent_id_scope IS NULL"
		} else {
			filter = "AND s.parent_id_scope IS NOT NULL"
		}
	}

	// Multi scopes aggregate the categories of their children; n_cities
	// counts enabled children visible to the user through the graph.
	query := fmt.Sprintf(`
		SELECT s.id_scope, s.scope_name,
		       array(SELECT DISTINCT c.id_category
		               FROM metadata.categories_scopes c
		              WHERE s.status = 1 AND c.id_scope = ANY (
		                    CASE WHEN s.parent_id_scope IS NULL
		                         THEN array(SELECT sp.id_scope::text
		                                      FROM metadata.scopes sp
		                                     WHERE sp.parent_id_scope = s.id_scope)
		                         ELSE ARRAY[s.id_scope] END)
		              ORDER BY c.id_category) AS categories,
		       (SELECT count(*)
		          FROM metadata.scopes sp
		          JOIN public.users_graph ug
		            ON sp.id_scope = ug.name
		           AND ($1 = ANY(ug.read_users) OR $1 = ANY(ug.write_users))
		         WHERE sp.status = 1
		           AND sp.parent_id_scope IS NOT NULL
		           AND sp.parent_id_scope = s.id_scope) AS n_cities,
		       (s.parent_id_scope IS NULL) AS multi
		  FROM metadata.scopes s
		 WHERE s.status = 1
		   AND (s.parent_id_scope = '%s' OR s.parent_id_scope IS NULL)
		   %s
		 ORDER BY s.scope_name`, domain.ParentOrphan, filter)

	rows, err := r.conn.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list root scopes: %w", err)
	}
	defer rows.Close()

	var result []ScopeViewRow
	for rows.Next() {
		var (
			row     ScopeViewRow
			nCities int
		)
		if err := rows.Scan(&row.View.ID, &row.View.Name, &row.View.Categories, &nCities, &row.Multi); err != nil {
			return nil, fmt.Errorf("failed to scan root scope: %w", err)
		}
		multiVal := row.Multi
		row.View.Multi = &multiVal
		if row.Multi {
			row.View.NCities = &nCities
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *scopeRepository) ReducedScopes(ctx context.Context) ([]domain.Scope, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT s.id_scope, s.scope_name, s.dbschema, s.parent_id_scope,
		       s.status, s.timezone, s.zoom
		  FROM metadata.scopes s
		 ORDER BY s.id_scope`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []domain.Scope
	for rows.Next() {
		var s domain.Scope
		if err := rows.Scan(&s.ID, &s.Name, &s.Schema, &s.ParentID, &s.Status, &s.Timezone, &s.Zoom); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}

// Insert creates the scope row and, for non-multi scopes, its physical schema
// in the same transaction so a failed schema creation leaves no orphan row.
func (r *scopeRepository) Insert(ctx context.Context, scope domain.Scope, createSchema bool) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var geomSQL string
		args := []any{scope.ID, scope.Name, scope.Schema, scope.Status, scope.Zoom, scope.ParentID, scope.Timezone, scope.Config}
		if len(scope.Location) == 2 {
			// Location is [lat, lng]; PostGIS points are (lng, lat).
			geomSQL = "ST_SetSRID(ST_MakePoint($9, $10), 4326)"
			args = append(args, scope.Location[1], scope.Location[0])
		} else {
			geomSQL = "NULL"
		}

		insert := fmt.Sprintf(`
			INSERT INTO metadata.scopes
			       (id_scope, scope_name, dbschema, status, zoom, parent_id_scope, timezone, config, geom)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, %s)`, geomSQL)

		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("failed to insert scope: %w", err)
		}

		if createSchema {
			schema, err := db.SafeIdentifier(scope.Schema)
			if err != nil {
				return fmt.Errorf("invalid scope schema: %w", err)
			}
			if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
				return fmt.Errorf("failed to create scope schema: %w", err)
			}
		}
		return nil
	})
}

// Update applies only the fields present in changes, validating each
// explicitly before it joins the SET clause.
func (r *scopeRepository) Update(ctx context.Context, id string, changes domain.ScopeUpdate) error {
	var (
		set  []string
		args []any
	)
	add := func(expr string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf(expr, len(args)))
	}

	if changes.Name != nil {
		add("scope_name = $%d", *changes.Name)
	}
	if len(changes.Location) == 2 {
		args = append(args, changes.Location[1], changes.Location[0])
		set = append(set, fmt.Sprintf("geom = ST_SetSRID(ST_MakePoint($%d, $%d), 4326)", len(args)-1, len(args)))
	}
	if changes.Zoom != nil {
		add("zoom = $%d", *changes.Zoom)
	}
	if changes.Status != nil {
		add("status = $%d", *changes.Status)
	}
	if changes.Schema != nil {
		// The UNIQUE constraint rejects duplicates.
		add("dbschema = $%d", *changes.Schema)
	}
	if changes.Timezone != nil {
		add("timezone = $%d", *changes.Timezone)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE metadata.scopes SET %s WHERE id_scope = $%d",
		strings.Join(set, ", "), len(args))

	if _, err := r.conn.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update scope %q: %w", id, err)
	}
	return nil
}

// Delete removes the scope and its direct children. The orphan sentinel is
// excluded so deleting a scope literally named like the sentinel cannot sweep
// up unrelated leaves.
func (r *scopeRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.conn.Pool.Exec(ctx, `
		DELETE FROM metadata.scopes
		 WHERE id_scope = $1
		    OR (parent_id_scope = $1 AND parent_id_scope <> $2)`, id, domain.ParentOrphan)
	if err != nil {
		return false, fmt.Errorf("failed to delete scope %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectScopeViews(rows pgx.Rows) ([]ScopeViewRow, error) {
	var result []ScopeViewRow
	for rows.Next() {
		var (
			row      ScopeViewRow
			location []*float64
		)
		if err := rows.Scan(
			&row.View.ID, &row.View.Name, &row.View.Schema, &row.View.ParentID,
			&location, &row.View.Zoom, &row.View.Timezone,
			&row.View.Categories, &row.Multi, &row.ChildIDs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scope view: %w", err)
		}

		if len(location) == 2 && location[0] != nil && location[1] != nil {
			row.View.Location = []float64{*location[0], *location[1]}
		}
		multiVal := row.Multi
		row.View.Multi = &multiVal
		result = append(result, row)
	}
	return result, rows.Err()
}
