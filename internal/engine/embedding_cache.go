package engine

import (
	"strconv"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// embeddingCache keeps query embeddings per agent and model.
//
// Keys carry a per-agent generation; purge bumps it, which orphans every
// entry of the agent until ristretto evicts them.
type embeddingCache struct {
	cache *ristretto.Cache

	mu          sync.Mutex
	generations map[string]uint64
}

func newEmbeddingCache(size int64) (*embeddingCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &embeddingCache{cache: cache, generations: make(map[string]uint64)}, nil
}

func (c *embeddingCache) key(agentID, model, query string) string {
	c.mu.Lock()
	gen := c.generations[agentID]
	c.mu.Unlock()
	return agentID + "\x00" + strconv.FormatUint(gen, 10) + "\x00" + model + "\x00" + query
}

func (c *embeddingCache) get(agentID, model, query string) ([]float32, bool) {
	v, ok := c.cache.Get(c.key(agentID, model, query))
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

func (c *embeddingCache) set(agentID, model, query string, vec []float32) {
	c.cache.Set(c.key(agentID, model, query), vec, 1)
}

// purge drops every cached embedding of the agent.
func (c *embeddingCache) purge(agentID string) {
	c.mu.Lock()
	c.generations[agentID]++
	c.mu.Unlock()
}

func (c *embeddingCache) close() {
	c.cache.Close()
}
