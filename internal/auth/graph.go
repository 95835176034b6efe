package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/metrogrid/cityql/internal/db"
	"github.com/metrogrid/cityql/internal/domain"
)

// Access selects which grant set of a node an operation targets.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write"
)

// RootNodeName is the distinguished ancestor of every scope node.
const RootNodeName = "root"

// Node is one entry of the permission graph. Nodes form a tree mirroring the
// catalog hierarchy (scope, category, entity, variable) by name; names are
// unique only within a scope's subtree, so lookups by name may return several
// nodes.
type Node struct {
	ID         int64
	Name       string
	ParentID   *int64
	ReadUsers  []int64
	WriteUsers []int64
}

// HasRead reports whether the user appears in the node's read set.
func (n Node) HasRead(userID int64) bool {
	for _, u := range n.ReadUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// HasWrite reports whether the user appears in the node's write set.
func (n Node) HasWrite(userID int64) bool {
	for _, u := range n.WriteUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// Graph is the permission graph collaborator. The query hot path only reads;
// Create/Delete/Grant are provisioning-time operations.
type Graph interface {
	FindNode(ctx context.Context, name string) (Node, error)
	NodesByName(ctx context.Context, names []string) ([]Node, error)
	NodesByID(ctx context.Context, ids []int64) ([]Node, error)
	CreateNode(ctx context.Context, name string, parentID int64) (Node, error)
	DeleteNode(ctx context.Context, id int64) error
	DeleteNodeByName(ctx context.Context, name string) error
	Grant(ctx context.Context, name string, userID int64, access Access) error
	SuperUsers(ctx context.Context) ([]int64, error)
}

// pgGraph stores the permission graph in the users_graph table.
type pgGraph struct {
	db db.DBTX
}

// NewGraph creates a Postgres-backed permission graph.
func NewGraph(exec db.DBTX) Graph {
	return &pgGraph{db: exec}
}

func (g *pgGraph) FindNode(ctx context.Context, name string) (Node, error) {
	row := g.db.QueryRow(ctx,
		`SELECT id, name, parent_id, read_users, write_users
		   FROM public.users_graph WHERE name = $1 LIMIT 1`, name)

	node, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Node{}, fmt.Errorf("node %q: %w", name, domain.ErrNotFound)
		}
		return Node{}, fmt.Errorf("failed to find node %q: %w", name, err)
	}
	return node, nil
}

func (g *pgGraph) NodesByName(ctx context.Context, names []string) ([]Node, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := g.db.Query(ctx,
		`SELECT id, name, parent_id, read_users, write_users
		   FROM public.users_graph WHERE name = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes by name: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func (g *pgGraph) NodesByID(ctx context.Context, ids []int64) ([]Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := g.db.Query(ctx,
		`SELECT id, name, parent_id, read_users, write_users
		   FROM public.users_graph WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes by id: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// CreateNode inserts an empty node (no grants) under the given parent.
func (g *pgGraph) CreateNode(ctx context.Context, name string, parentID int64) (Node, error) {
	row := g.db.QueryRow(ctx,
		`INSERT INTO public.users_graph (name, parent_id, read_users, write_users)
		 VALUES ($1, $2, '{}', '{}')
		 RETURNING id, name, parent_id, read_users, write_users`, name, parentID)

	node, err := scanNode(row)
	if err != nil {
		return Node{}, fmt.Errorf("failed to create node %q: %w", name, err)
	}
	return node, nil
}

func (g *pgGraph) DeleteNode(ctx context.Context, id int64) error {
	if _, err := g.db.Exec(ctx, `DELETE FROM public.users_graph WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete node %d: %w", id, err)
	}
	return nil
}

// DeleteNodeByName removes a node and, via the parent FK cascade, its subtree.
func (g *pgGraph) DeleteNodeByName(ctx context.Context, name string) error {
	if _, err := g.db.Exec(ctx, `DELETE FROM public.users_graph WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete node %q: %w", name, err)
	}
	return nil
}

// Grant adds the user to the node's read or write set. Adding an existing
// user is a no-op, keeping grants idempotent.
func (g *pgGraph) Grant(ctx context.Context, name string, userID int64, access Access) error {
	column := "read_users"
	if access == AccessWrite {
		column = "write_users"
	}

	sql := fmt.Sprintf(
		`UPDATE public.users_graph
		    SET %s = array_append(%s, $1)
		  WHERE name = $2 AND NOT ($1 = ANY(%s))`, column, column, column)

	if _, err := g.db.Exec(ctx, sql, userID, name); err != nil {
		return fmt.Errorf("failed to grant %s on %q to user %d: %w", access, name, userID, err)
	}
	return nil
}

func (g *pgGraph) SuperUsers(ctx context.Context) ([]int64, error) {
	rows, err := g.db.Query(ctx,
		`SELECT users_id FROM public.users WHERE superadmin ORDER BY users_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list superadmins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan superadmin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanNode(row pgx.Row) (Node, error) {
	var node Node
	if err := row.Scan(&node.ID, &node.Name, &node.ParentID, &node.ReadUsers, &node.WriteUsers); err != nil {
		return Node{}, err
	}
	return node, nil
}

func collectNodes(rows pgx.Rows) ([]Node, error) {
	var nodes []Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}
