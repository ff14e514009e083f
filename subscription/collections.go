package subscription

import (
	"sort"
	"strings"
	"sync"
)

// Collections is the table of registered collection keys. A collection key
// is a prefix; every longer key that starts with it is a member. A key
// belongs to at most one collection, the longest registered prefix.
type Collections struct {
	prefixes map[string]bool
	mu       sync.RWMutex
}

// NewCollections creates a table holding prefixes.
func NewCollections(prefixes ...string) *Collections {
	c := &Collections{prefixes: make(map[string]bool)}
	c.Register(prefixes...)
	return c
}

// Register adds collection keys. Empty prefixes are ignored.
func (c *Collections) Register(prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range prefixes {
		if p != "" {
			c.prefixes[p] = true
		}
	}
}

// IsCollectionKey reports whether key is a registered collection key.
func (c *Collections) IsCollectionKey(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefixes[key]
}

// CollectionFor returns the collection key that key is a member of.
func (c *Collections) CollectionFor(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	best := ""
	for p := range c.prefixes {
		if len(p) > len(best) && IsMember(p, key) {
			best = p
		}
	}
	return best, best != ""
}

// Keys returns the registered collection keys, sorted.
func (c *Collections) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.prefixes))
	for p := range c.prefixes {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

// IsMember reports whether key is a member of the collection: it starts
// with collection and is longer than it.
func IsMember(collection, key string) bool {
	return len(key) > len(collection) && strings.HasPrefix(key, collection)
}

// Suffix returns the part of a member key after its collection key.
func Suffix(collection, key string) string {
	return strings.TrimPrefix(key, collection)
}
