package storage

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// CachedStore keeps recently loaded scenes in memory in front of another store.
// Callers get their own copy of a cached scene.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, *Scene]
}

// NewCachedStore wraps next with an LRU of size entries.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Scene](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (c *CachedStore) List(ctx context.Context) ([]string, error) {
	return c.next.List(ctx)
}

func (c *CachedStore) Load(ctx context.Context, id string) (*Scene, error) {
	if s, ok := c.cache.Get(id); ok {
		return cloneScene(s), nil
	}
	s, err := c.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, cloneScene(s))
	return s, nil
}

func (c *CachedStore) Save(ctx context.Context, s *Scene) error {
	c.cache.Remove(s.ID)
	return c.next.Save(ctx, s)
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	c.cache.Remove(id)
	return c.next.Delete(ctx, id)
}

// Cached reports whether id is in the cache.
func (c *CachedStore) Cached(id string) bool {
	return c.cache.Contains(id)
}

func cloneScene(s *Scene) *Scene {
	out := *s
	out.Nodes = make([]graph.NodeRecord, len(s.Nodes))
	for i, n := range s.Nodes {
		n.ChildIndices = append([]int(nil), n.ChildIndices...)
		out.Nodes[i] = n
	}
	out.Payloads = make([]graph.PayloadRecord, len(s.Payloads))
	for i, p := range s.Payloads {
		out.Payloads[i] = p.Clone()
	}
	if s.View != nil {
		v := *s.View
		out.View = &v
	}
	return &out
}
