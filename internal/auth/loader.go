package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/graph-gophers/dataloader"
)

// NodeLoader batches and caches permission graph lookups for one resolution.
// Sibling-set checks requested concurrently collapse into single queries, and
// shared ancestors are fetched once per resolution.
type NodeLoader struct {
	byName *dataloader.Loader
	byID   *dataloader.Loader
}

// NewNodeLoader creates a loader over the graph. Loaders cache per instance,
// so callers create one per resolution to observe graph mutations.
func NewNodeLoader(graph Graph) *NodeLoader {
	nameBatch := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}

		nodes, err := graph.NodesByName(ctx, names)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// A name may resolve to several nodes in different subtrees.
		byName := make(map[string][]Node)
		for _, n := range nodes {
			byName[n.Name] = append(byName[n.Name], n)
		}

		results := make([]*dataloader.Result, len(keys))
		for i, name := range names {
			results[i] = &dataloader.Result{Data: byName[name]}
		}
		return results
	}

	idBatch := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]int64, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				// The batch contract requires one result per key.
				results := make([]*dataloader.Result, len(keys))
				for j := range results {
					results[j] = &dataloader.Result{Error: err}
				}
				return results
			}
			ids[i] = id
		}

		nodes, err := graph.NodesByID(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[int64]Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID] = n
		}

		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if n, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: n}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	return &NodeLoader{
		byName: dataloader.NewBatchedLoader(nameBatch, dataloader.WithWait(2*time.Millisecond)),
		byID:   dataloader.NewBatchedLoader(idBatch, dataloader.WithWait(2*time.Millisecond)),
	}
}

// NodesByName returns every node carrying the given name.
func (l *NodeLoader) NodesByName(ctx context.Context, name string) ([]Node, error) {
	data, err := l.byName.Load(ctx, dataloader.StringKey(name))()
	if err != nil {
		return nil, err
	}
	nodes, _ := data.([]Node)
	return nodes, nil
}

// NodeByID returns the node with the given id, or ok=false when absent.
func (l *NodeLoader) NodeByID(ctx context.Context, id int64) (Node, bool, error) {
	data, err := l.byID.Load(ctx, dataloader.StringKey(strconv.FormatInt(id, 10)))()
	if err != nil {
		return Node{}, false, err
	}
	node, ok := data.(Node)
	return node, ok, nil
}
