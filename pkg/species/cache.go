package species

import (
	"strings"
	"sync"

	"birdtrip/pkg/model"
)

// Cache remembers successful validations for the life of the process.
// The same species list tends to recur across planning requests, and a
// hit skips both the taxonomy scan and any LLM call. Failed lookups are
// never stored so a transient miss can succeed later.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]model.TargetSpecies
}

// NewCache creates an empty validation cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]model.TargetSpecies)}
}

// Get returns the cached validation for a raw input name.
func (c *Cache) Get(name string) (model.TargetSpecies, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ts, ok := c.entries[cacheKey(name)]
	return ts, ok
}

// Put stores a successful validation.
func (c *Cache) Put(name string, ts model.TargetSpecies) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(name)] = ts
}

// Len returns the number of cached validations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cacheKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
