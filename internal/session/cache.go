package session

import (
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"token-graph-lab/internal/domain"
)

// Cache keeps built and reduced graphs per token so that new views skip the
// builder and reducer.
type Cache struct {
	c *gocache.Cache
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl, cleanup time.Duration) *Cache {
	return &Cache{c: gocache.New(ttl, cleanup)}
}

// Key identifies a graph by token and node budget.
func Key(tokenID string, maxNodes int) string {
	return fmt.Sprintf("%s|%d", tokenID, maxNodes)
}

// Get returns the cached graph for key.
func (c *Cache) Get(key string) (*domain.Graph, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	g, ok := v.(*domain.Graph)
	return g, ok
}

// Set stores g under key with the default expiration.
func (c *Cache) Set(key string, g *domain.Graph) {
	c.c.Set(key, g, gocache.DefaultExpiration)
}

// Invalidate drops every entry for tokenID.
func (c *Cache) Invalidate(tokenID string) {
	prefix := tokenID + "|"
	for key := range c.c.Items() {
		if strings.HasPrefix(key, prefix) {
			c.c.Delete(key)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.c.ItemCount()
}
