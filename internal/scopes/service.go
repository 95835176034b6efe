// Package scopes resolves the tenant hierarchy: single scopes, multi-tenant
// aggregators and their permission-filtered category sets, plus the
// administrative provisioning flow.
package scopes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/metrogrid/cityql/internal/auth"
	"github.com/metrogrid/cityql/internal/domain"
	"github.com/metrogrid/cityql/internal/repository"
)

// PermissionResolver filters candidate identifiers through the permission
// graph.
type PermissionResolver interface {
	ValidElements(ctx context.Context, p auth.Principal, scope string, elements []string) ([]string, error)
	ValidScopes(ctx context.Context, p auth.Principal, scopes []string) ([]string, error)
}

// CatalogReader is the subset of the catalog the scope views and provisioning
// flow need.
type CatalogReader interface {
	CatalogTree(ctx context.Context) ([]domain.CatalogCategory, error)
	ScopeMetadata(ctx context.Context, scope string, includeDisabled bool) ([]domain.CategoryMetadata, error)
}

// Service resolves scope views and provisions scopes.
type Service struct {
	repo     repository.ScopeRepository
	resolver PermissionResolver
	graph    auth.Graph
	catalog  CatalogReader

	// defaultCARTOAccount seeds the third-party account reference in new
	// scope configuration; injected, never read from global state.
	defaultCARTOAccount string
}

// NewService creates the scope hierarchy service.
func NewService(repo repository.ScopeRepository, resolver PermissionResolver, graph auth.Graph, catalog CatalogReader, defaultCARTOAccount string) *Service {
	return &Service{
		repo:                repo,
		resolver:            resolver,
		graph:               graph,
		catalog:             catalog,
		defaultCARTOAccount: defaultCARTOAccount,
	}
}

// GetScope loads one scope for the caller, or nil when the scope is unknown
// or unreadable. Leaf scopes return their permission-filtered categories;
// root scopes additionally aggregate their children, presented as leaves,
// each filtered independently and concurrently. A child left with zero
// permitted categories is dropped from the aggregate view.
func (s *Service) GetScope(ctx context.Context, id string, p auth.Principal) (*domain.ScopeView, error) {
	rows, err := s.repo.ScopeViews(ctx, []string{id}, p.EffectiveUserID())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	view := row.View

	if !row.Multi {
		view.Childs = nil
		if p.Published {
			return &view, nil
		}
		valids, err := s.resolver.ValidElements(ctx, p, view.ID, view.Categories)
		if err != nil {
			return nil, err
		}
		view.Categories = valids
		return &view, nil
	}

	childRows, err := s.repo.ScopeViews(ctx, row.ChildIDs, p.EffectiveUserID())
	if err != nil {
		return nil, err
	}

	children := make([]*domain.ScopeView, len(childRows))
	g, gctx := errgroup.WithContext(ctx)
	for i := range childRows {
		i := i
		g.Go(func() error {
			child := childRows[i].View.AsChild()
			valids, err := s.resolver.ValidElements(gctx, p, view.ID, child.Categories)
			if err != nil {
				return err
			}
			child.Categories = valids
			children[i] = child
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Only children contributing at least one permitted category appear.
	view.Childs = view.Childs[:0]
	for _, child := range children {
		if len(child.Categories) > 0 {
			view.Childs = append(view.Childs, child)
		}
	}

	view.ParentID = nil
	view.Categories = nil
	return &view, nil
}

// GetScopeList lists the enabled root-level scopes the user may see. Scopes
// granted zero categories stay in the list with an empty category set:
// presence signals tenant existence, categories signal drill-down rights.
func (s *Service) GetScopeList(ctx context.Context, p auth.Principal, multi *bool) ([]domain.ScopeView, error) {
	rows, err := s.repo.ListRootScopes(ctx, p.EffectiveUserID(), multi)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.View.ID
	}
	valids, err := s.resolver.ValidScopes(ctx, p, ids)
	if err != nil {
		return nil, err
	}
	valid := make(map[string]bool, len(valids))
	for _, id := range valids {
		valid[id] = true
	}

	var kept []repository.ScopeViewRow
	for _, row := range rows {
		if valid[row.View.ID] {
			kept = append(kept, row)
		}
	}

	views := make([]domain.ScopeView, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	for i := range kept {
		i := i
		g.Go(func() error {
			view := kept[i].View
			valids, err := s.resolver.ValidElements(gctx, p, view.ID, view.Categories)
			if err != nil {
				return err
			}
			view.Categories = valids
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// GetScopeMetadata returns the scope's catalog tree filtered for the caller:
// within each category the entity sibling set is resolved as one batch, and
// within each surviving entity the variable sibling set as another. Categories
// stay listed even when every entity filters away; the published principal
// sees the tree unfiltered. Superadmins may inspect disabled scopes.
func (s *Service) GetScopeMetadata(ctx context.Context, id string, p auth.Principal) ([]domain.CategoryMetadata, error) {
	tree, err := s.catalog.ScopeMetadata(ctx, id, p.Superadmin)
	if err != nil {
		return nil, err
	}
	if p.Published {
		return tree, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range tree {
		category := &tree[i]
		g.Go(func() error {
			ids := make([]string, len(category.Entities))
			for j, entity := range category.Entities {
				ids[j] = entity.ID
			}
			valids, err := s.resolver.ValidElements(gctx, p, id, ids)
			if err != nil {
				return err
			}
			valid := make(map[string]bool, len(valids))
			for _, entityID := range valids {
				valid[entityID] = true
			}

			kept := category.Entities[:0]
			for j := range category.Entities {
				if valid[category.Entities[j].ID] {
					kept = append(kept, category.Entities[j])
				}
			}
			category.Entities = kept

			eg, ectx := errgroup.WithContext(gctx)
			for j := range category.Entities {
				entity := &category.Entities[j]
				eg.Go(func() error {
					varIDs := make([]string, len(entity.Variables))
					for k, variable := range entity.Variables {
						varIDs[k] = variable.ID
					}
					valids, err := s.resolver.ValidElements(ectx, p, id, varIDs)
					if err != nil {
						return err
					}
					valid := make(map[string]bool, len(valids))
					for _, variableID := range valids {
						valid[variableID] = true
					}

					keptVars := entity.Variables[:0]
					for k := range entity.Variables {
						if valid[entity.Variables[k].ID] {
							keptVars = append(keptVars, entity.Variables[k])
						}
					}
					entity.Variables = keptVars
					return nil
				})
			}
			return eg.Wait()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tree, nil
}

// UpdateScope applies the given changes to a scope row.
func (s *Service) UpdateScope(ctx context.Context, id string, changes domain.ScopeUpdate) error {
	return s.repo.Update(ctx, id, changes)
}

// DeleteScope removes a scope, its children and its permission subtree.
func (s *Service) DeleteScope(ctx context.Context, id string) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("scope %q: %w", id, domain.ErrNotFound)
	}
	if err := s.graph.DeleteNodeByName(ctx, id); err != nil {
		return err
	}
	return nil
}

// scopeConfig is the configuration blob seeded into every new scope.
type scopeConfig struct {
	CARTO struct {
		Account string `json:"account"`
	} `json:"carto"`
}

// CreateScope provisions a new scope: a slug-derived unique identifier and
// schema, the scope row (with its physical schema for non-multi scopes), an
// empty permission node under root, the full catalog subtree for non-multi
// scopes, and read grants for every superadmin. Seeding runs as a sequential
// pipeline: the first failure aborts later stages, deletes the nodes already
// created and removes the scope row, so no orphaned graph node survives a
// partial provisioning.
func (s *Service) CreateScope(ctx context.Context, req domain.NewScopeRequest) (string, error) {
	existing, err := s.repo.ReducedScopes(ctx)
	if err != nil {
		return "", err
	}

	id := uniqueSlug(req.Name, existing)

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	var parentID *string
	if !req.Multi {
		if req.ParentID != nil {
			parentID = req.ParentID
		} else {
			orphan := domain.ParentOrphan
			parentID = &orphan
		}
	}

	var cfg scopeConfig
	cfg.CARTO.Account = s.defaultCARTOAccount
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scope config: %w", err)
	}

	scope := domain.Scope{
		ID:       id,
		Name:     req.Name,
		Schema:   id,
		ParentID: parentID,
		Status:   0,
		Timezone: timezone,
		Location: req.Location,
		Zoom:     req.Zoom,
		Config:   configJSON,
	}

	if err := s.repo.Insert(ctx, scope, !req.Multi); err != nil {
		return "", err
	}

	if err := s.seedPermissions(ctx, id, !req.Multi); err != nil {
		// The row is already committed; compensation removed the graph
		// nodes, now remove the row itself.
		if _, delErr := s.repo.Delete(ctx, id); delErr != nil {
			logrus.WithError(delErr).WithField("scope", id).
				Error("failed to remove scope row after seeding failure")
			return "", fmt.Errorf("%w: %v", domain.ErrProvisioningPartial, err)
		}
		return "", err
	}

	return id, nil
}

// seedPermissions builds the scope's permission subtree and grants read to
// every superadmin. Nodes created before a failure are deleted in reverse
// order.
func (s *Service) seedPermissions(ctx context.Context, scopeID string, full bool) (err error) {
	root, err := s.graph.FindNode(ctx, auth.RootNodeName)
	if err != nil {
		return err
	}

	var created []auth.Node
	defer func() {
		if err == nil {
			return
		}
		for i := len(created) - 1; i >= 0; i-- {
			if delErr := s.graph.DeleteNode(ctx, created[i].ID); delErr != nil {
				logrus.WithError(delErr).WithField("node", created[i].Name).
					Error("failed to clean up permission node")
				err = fmt.Errorf("%w: %v", domain.ErrProvisioningPartial, err)
			}
		}
	}()

	scopeNode, err := s.graph.CreateNode(ctx, scopeID, root.ID)
	if err != nil {
		return err
	}
	created = append(created, scopeNode)

	if full {
		catalogue, err2 := s.catalog.CatalogTree(ctx)
		if err2 != nil {
			err = err2
			return err
		}

		for _, category := range catalogue {
			if ctx.Err() != nil {
				err = ctx.Err()
				return err
			}
			categoryNode, err2 := s.graph.CreateNode(ctx, category.ID, scopeNode.ID)
			if err2 != nil {
				err = fmt.Errorf("failed to seed category %q: %w", category.ID, err2)
				return err
			}
			created = append(created, categoryNode)

			for _, entity := range category.Entities {
				entityNode, err2 := s.graph.CreateNode(ctx, entity.ID, categoryNode.ID)
				if err2 != nil {
					err = fmt.Errorf("failed to seed entity %q: %w", entity.ID, err2)
					return err
				}
				created = append(created, entityNode)

				for _, variable := range entity.Variables {
					variableNode, err2 := s.graph.CreateNode(ctx, variable, entityNode.ID)
					if err2 != nil {
						err = fmt.Errorf("failed to seed variable %q: %w", variable, err2)
						return err
					}
					created = append(created, variableNode)
				}
			}
		}
	}

	superUsers, err := s.graph.SuperUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range superUsers {
		if err = s.graph.Grant(ctx, scopeID, user, auth.AccessRead); err != nil {
			err = fmt.Errorf("failed to grant read on %q to superadmin %d: %w", scopeID, user, err)
			return err
		}
	}

	return nil
}
