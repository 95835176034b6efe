package auth

import (
	"context"
	"sync"
	"testing"
)

// Concurrent lookups collapse into one batch; every caller must still get the
// result for its own key, one result per key.
func TestNodeLoaderBatchAlignment(t *testing.T) {
	g := twoCityGraph()
	loader := NewNodeLoader(g)
	ctx := context.Background()

	ids := []int64{1, 2, 3, 4, 5}
	names := make([]string, len(ids))

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			node, ok, err := loader.NodeByID(ctx, id)
			if err != nil {
				errs[i] = err
				return
			}
			if !ok {
				return
			}
			names[i] = node.Name
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("load %d failed: %v", i, err)
		}
	}
	want := []string{RootNodeName, "city1", "city2", "environment", "environment"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("key %d: expected %q, got %q", ids[i], name, names[i])
		}
	}
}

func TestNodeLoaderMissingID(t *testing.T) {
	loader := NewNodeLoader(newMemGraph())

	_, ok, err := loader.NodeByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("NodeByID failed: %v", err)
	}
	if ok {
		t.Fatal("expected missing node to report absent")
	}
}

func TestNodeLoaderNamesCollide(t *testing.T) {
	loader := NewNodeLoader(twoCityGraph())

	nodes, err := loader.NodesByName(context.Background(), "environment")
	if err != nil {
		t.Fatalf("NodesByName failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected both subtree nodes, got %+v", nodes)
	}
}
