package auth

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/metrogrid/cityql/internal/domain"
)

// maxDepth bounds ancestor walks. The catalog tree is four levels deep under
// root; anything beyond this indicates a corrupted graph.
const maxDepth = 16

// Resolver answers batched read-permission checks against the permission
// graph. A grant holds when the user appears in the read set of the candidate
// node or of any of its ancestors. Checks are requested per sibling set so the
// traversal is amortized over one batched loader.
type Resolver struct {
	graph Graph
}

// NewResolver creates a resolver over the shared permission graph.
func NewResolver(graph Graph) *Resolver {
	return &Resolver{graph: graph}
}

// ValidElements returns the candidate identifiers the principal may read
// within the given scope's subtree (or anywhere, when scope is empty).
// Duplicates in the candidate set are collapsed; input order is preserved.
// The published principal bypasses the graph entirely and is granted every
// candidate.
func (r *Resolver) ValidElements(ctx context.Context, p Principal, scope string, elements []string) ([]string, error) {
	unique := dedupe(elements)

	if p.Published {
		// Published widgets see everything. Keep this branch explicit and
		// auditable; it must never become a default.
		logrus.WithField("scope", scope).Debug("published principal, permission check bypassed")
		return unique, nil
	}

	loader := NewNodeLoader(r.graph)

	var scopeNodeIDs map[int64]bool
	if scope != "" {
		scopeNodes, err := loader.NodesByName(ctx, scope)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPermissionResolution, err)
		}
		scopeNodeIDs = make(map[int64]bool, len(scopeNodes))
		for _, n := range scopeNodes {
			scopeNodeIDs[n.ID] = true
		}
	}

	granted := make([]bool, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range unique {
		i, name := i, name
		g.Go(func() error {
			ok, err := r.elementGranted(gctx, loader, p.UserID, scopeNodeIDs, name)
			if err != nil {
				return err
			}
			granted[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPermissionResolution, err)
	}

	result := make([]string, 0, len(unique))
	for i, name := range unique {
		if granted[i] {
			result = append(result, name)
		}
	}
	return result, nil
}

// ValidScopes filters scope identifiers the user may read. Scope nodes hang
// directly under root, so no subtree restriction applies.
func (r *Resolver) ValidScopes(ctx context.Context, p Principal, scopes []string) ([]string, error) {
	return r.ValidElements(ctx, p, "", scopes)
}

// elementGranted checks every graph node carrying the candidate name. A node
// counts only when it sits inside the requested scope's subtree; the grant
// itself may come from the node or be inherited from any ancestor.
func (r *Resolver) elementGranted(ctx context.Context, loader *NodeLoader, userID int64, scopeNodeIDs map[int64]bool, name string) (bool, error) {
	nodes, err := loader.NodesByName(ctx, name)
	if err != nil {
		return false, err
	}

	for _, node := range nodes {
		inScope := scopeNodeIDs == nil || scopeNodeIDs[node.ID]
		grantedHere := node.HasRead(userID)

		current := node
		for depth := 0; depth < maxDepth && current.ParentID != nil; depth++ {
			parent, ok, err := loader.NodeByID(ctx, *current.ParentID)
			if err != nil {
				return false, err
			}
			if !ok {
				break
			}
			if scopeNodeIDs != nil && scopeNodeIDs[parent.ID] {
				inScope = true
			}
			if parent.HasRead(userID) {
				grantedHere = true
			}
			current = parent
		}

		if inScope && grantedHere {
			return true, nil
		}
	}
	return false, nil
}

// dedupe collapses duplicates while preserving first-seen order. The graph may
// return the same grant via multiple paths.
func dedupe(elements []string) []string {
	seen := make(map[string]bool, len(elements))
	result := make([]string, 0, len(elements))
	for _, e := range elements {
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		result = append(result, e)
	}
	return result
}
