package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/go-spatial/geographer/internal/log"
)

// CachedQuerier wraps an *RTree with an optional redis-backed cache for
// Query results, so repeated reads against an unchanged tree skip the
// tree walk. The cache is a pure performance layer: the RTree remains
// the source of truth for Query, and every mutation invalidates the
// whole cache by bumping a generation key rather than tracking
// per-query dependencies, since candidate sets can overlap arbitrarily.
type CachedQuerier struct {
	tree   *RTree
	client *redis.Client
	prefix string
	ttl    time.Duration
	gen    int64
}

// NewCachedQuerier wraps tree with a cache using client, under the
// given key prefix (so multiple connectors can share one redis
// instance). A nil client disables caching; Query then just delegates
// to tree.Query.
func NewCachedQuerier(tree *RTree, client *redis.Client, prefix string, ttl time.Duration) *CachedQuerier {
	return &CachedQuerier{tree: tree, client: client, prefix: prefix, ttl: ttl}
}

// Invalidate bumps the generation, discarding all previously cached
// query results. Call after any Insert/Remove/BulkLoad on the
// underlying tree.
func (c *CachedQuerier) Invalidate() {
	c.gen++
}

// Query returns tree.Query(b), consulting the cache first when one is configured.
func (c *CachedQuerier) Query(b Bounds) []string {
	if c.client == nil {
		return c.tree.Query(b)
	}
	key := c.cacheKey(b)
	if cached, err := c.client.Get(key).Result(); err == nil {
		var ids []string
		if jsonErr := json.Unmarshal([]byte(cached), &ids); jsonErr == nil {
			return ids
		}
	}
	ids := c.tree.Query(b)
	if payload, err := json.Marshal(ids); err == nil {
		if err := c.client.Set(key, payload, c.ttl).Err(); err != nil {
			log.Debugf("index cache: failed to populate %s: %v", key, err)
		}
	}
	return ids
}

func (c *CachedQuerier) cacheKey(b Bounds) string {
	return fmt.Sprintf("%s:g%d:%.6f,%.6f,%.6f,%.6f", c.prefix, c.gen, b.MinX, b.MinY, b.MaxX, b.MaxY)
}
