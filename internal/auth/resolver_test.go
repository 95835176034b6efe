package auth

import (
	"context"
	"testing"

	"github.com/metrogrid/cityql/internal/domain"
)

// memGraph is an in-memory Graph used by the resolver tests.
type memGraph struct {
	nodes  []Node
	nextID int64
	supers []int64
}

func newMemGraph() *memGraph {
	g := &memGraph{nextID: 1}
	g.addNode(RootNodeName, nil, nil, nil)
	return g
}

func (g *memGraph) addNode(name string, parentID *int64, readUsers, writeUsers []int64) Node {
	node := Node{ID: g.nextID, Name: name, ParentID: parentID, ReadUsers: readUsers, WriteUsers: writeUsers}
	g.nextID++
	g.nodes = append(g.nodes, node)
	return node
}

func (g *memGraph) FindNode(ctx context.Context, name string) (Node, error) {
	for _, n := range g.nodes {
		if n.Name == name {
			return n, nil
		}
	}
	return Node{}, domain.ErrNotFound
}

func (g *memGraph) NodesByName(ctx context.Context, names []string) ([]Node, error) {
	var result []Node
	for _, n := range g.nodes {
		for _, name := range names {
			if n.Name == name {
				result = append(result, n)
				break
			}
		}
	}
	return result, nil
}

func (g *memGraph) NodesByID(ctx context.Context, ids []int64) ([]Node, error) {
	var result []Node
	for _, n := range g.nodes {
		for _, id := range ids {
			if n.ID == id {
				result = append(result, n)
				break
			}
		}
	}
	return result, nil
}

func (g *memGraph) CreateNode(ctx context.Context, name string, parentID int64) (Node, error) {
	return g.addNode(name, &parentID, nil, nil), nil
}

func (g *memGraph) DeleteNode(ctx context.Context, id int64) error {
	for i, n := range g.nodes {
		if n.ID == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *memGraph) DeleteNodeByName(ctx context.Context, name string) error {
	kept := g.nodes[:0]
	for _, n := range g.nodes {
		if n.Name != name {
			kept = append(kept, n)
		}
	}
	g.nodes = kept
	return nil
}

func (g *memGraph) Grant(ctx context.Context, name string, userID int64, access Access) error {
	for i, n := range g.nodes {
		if n.Name != name {
			continue
		}
		if access == AccessWrite {
			if !n.HasWrite(userID) {
				g.nodes[i].WriteUsers = append(n.WriteUsers, userID)
			}
		} else if !n.HasRead(userID) {
			g.nodes[i].ReadUsers = append(n.ReadUsers, userID)
		}
	}
	return nil
}

func (g *memGraph) SuperUsers(ctx context.Context) ([]int64, error) {
	return g.supers, nil
}

// twoCityGraph builds root -> {city1, city2}, each city carrying an
// "environment" category node. Only city1 grants read to user 7.
func twoCityGraph() *memGraph {
	g := newMemGraph()
	rootID := int64(1)
	city1 := g.addNode("city1", &rootID, []int64{7}, nil)
	city2 := g.addNode("city2", &rootID, nil, nil)
	g.addNode("environment", &city1.ID, nil, nil)
	g.addNode("environment", &city2.ID, nil, nil)
	return g
}

func TestValidElementsInheritsFromScope(t *testing.T) {
	resolver := NewResolver(twoCityGraph())
	p := Principal{UserID: 7}

	valid, err := resolver.ValidElements(context.Background(), p, "city1",
		[]string{"environment", "parking"})
	if err != nil {
		t.Fatalf("ValidElements failed: %v", err)
	}
	if len(valid) != 1 || valid[0] != "environment" {
		t.Fatalf("expected [environment], got %v", valid)
	}
}

func TestValidElementsScopeBoundary(t *testing.T) {
	resolver := NewResolver(twoCityGraph())
	p := Principal{UserID: 7}

	// The same category name exists under city2, but user 7 holds no grant
	// on that subtree.
	valid, err := resolver.ValidElements(context.Background(), p, "city2", []string{"environment"})
	if err != nil {
		t.Fatalf("ValidElements failed: %v", err)
	}
	if len(valid) != 0 {
		t.Fatalf("expected no grants outside the scope, got %v", valid)
	}
}

func TestValidElementsDirectGrant(t *testing.T) {
	g := twoCityGraph()
	if err := g.Grant(context.Background(), "environment", 9, AccessRead); err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	resolver := NewResolver(g)

	valid, err := resolver.ValidElements(context.Background(), Principal{UserID: 9}, "city1", []string{"environment"})
	if err != nil {
		t.Fatalf("ValidElements failed: %v", err)
	}
	if len(valid) != 1 {
		t.Fatalf("expected direct grant to hold, got %v", valid)
	}
}

func TestValidElementsWriteDoesNotImplyRead(t *testing.T) {
	g := newMemGraph()
	rootID := int64(1)
	g.addNode("city1", &rootID, nil, []int64{7})
	resolver := NewResolver(g)

	valid, err := resolver.ValidScopes(context.Background(), Principal{UserID: 7}, []string{"city1"})
	if err != nil {
		t.Fatalf("ValidScopes failed: %v", err)
	}
	if len(valid) != 0 {
		t.Fatalf("expected write grant to not imply read, got %v", valid)
	}
}

func TestValidElementsDedupes(t *testing.T) {
	resolver := NewResolver(twoCityGraph())

	valid, err := resolver.ValidScopes(context.Background(), Principal{UserID: 7},
		[]string{"city1", "city1", "", "city1"})
	if err != nil {
		t.Fatalf("ValidScopes failed: %v", err)
	}
	if len(valid) != 1 || valid[0] != "city1" {
		t.Fatalf("expected deduped [city1], got %v", valid)
	}
}

func TestValidElementsPublishedBypass(t *testing.T) {
	// The published principal never touches the graph.
	resolver := NewResolver(newMemGraph())

	valid, err := resolver.ValidElements(context.Background(), PublishedPrincipal, "city1",
		[]string{"environment", "parking", "environment"})
	if err != nil {
		t.Fatalf("ValidElements failed: %v", err)
	}
	if len(valid) != 2 || valid[0] != "environment" || valid[1] != "parking" {
		t.Fatalf("expected every candidate granted once, got %v", valid)
	}
}

func TestValidScopesIdempotent(t *testing.T) {
	resolver := NewResolver(twoCityGraph())
	p := Principal{UserID: 7}

	first, err := resolver.ValidScopes(context.Background(), p, []string{"city1", "city2"})
	if err != nil {
		t.Fatalf("ValidScopes failed: %v", err)
	}
	second, err := resolver.ValidScopes(context.Background(), p, []string{"city1", "city2"})
	if err != nil {
		t.Fatalf("ValidScopes failed: %v", err)
	}
	if len(first) != len(second) || len(first) != 1 || first[0] != second[0] {
		t.Fatalf("expected stable results, got %v then %v", first, second)
	}
}
