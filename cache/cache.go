// Package cache holds the latest known value per key in memory.
//
// The cache separates three things: the values themselves, the set of keys
// known to exist in storage, and the order in which values were last used.
// Eviction forgets values, never that a key exists, so prefix queries over
// known keys stay complete while resident memory stays bounded.
package cache

import (
	"container/list"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/tailored-agentic-units/kvcache/merge"
)

var equalOpts = cmp.Options{
	cmp.Comparer(func(a, b *regexp.Regexp) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.String() == b.String()
	}),
	cmp.Exporter(func(reflect.Type) bool { return true }),
	// Decoded documents carry float64 where callers wrote int.
	cmp.FilterValues(func(a, b any) bool {
		_, okA := number(a)
		_, okB := number(b)
		return okA && okB
	}, cmp.Comparer(func(a, b any) bool {
		fa, _ := number(a)
		fb, _ := number(b)
		return fa == fb
	})),
}

func number(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Cache is the in-memory value cache. Values are copied on the way in and
// on the way out, so callers never share mutable state with the cache. All
// methods are safe for concurrent use.
type Cache struct {
	values    map[string]any
	known     map[string]bool
	recent    *list.List
	recentPos map[string]*list.Element
	tasks     map[string]*Task
	gens      map[string]uint64
	clock     uint64
	resetAt   uint64
	maxRecent int
	mu        sync.Mutex
}

// New creates an empty Cache.
func New(cfg *Config) *Cache {
	return &Cache{
		values:    make(map[string]any),
		known:     make(map[string]bool),
		recent:    list.New(),
		recentPos: make(map[string]*list.Element),
		tasks:     make(map[string]*Task),
		gens:      make(map[string]uint64),
		maxRecent: cfg.MaxRecentKeys,
	}
}

// touch marks key as most recently used. Callers hold mu.
func (c *Cache) touch(key string) {
	if el, ok := c.recentPos[key]; ok {
		c.recent.MoveToBack(el)
		return
	}
	c.recentPos[key] = c.recent.PushBack(key)
}

// bump records a write to key. Callers hold mu.
func (c *Cache) bump(key string) {
	c.clock++
	c.gens[key] = c.clock
}

// forget removes key from the recently-used order. Callers hold mu.
func (c *Cache) forget(key string) {
	if el, ok := c.recentPos[key]; ok {
		c.recent.Remove(el)
		delete(c.recentPos, key)
	}
}

// Get returns a copy of the cached value for key and marks it most recently
// used.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, ok := c.values[key]
	if !ok {
		return nil, false
	}
	c.touch(key)
	return merge.Clone(val), true
}

// Set stores value under key, registers the key as known, marks it most
// recently used, and returns the value.
func (c *Cache) Set(key string, value any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values[key] = merge.Clone(value)
	c.known[key] = true
	c.touch(key)
	c.bump(key)
	return value
}

// Generation returns a token that changes whenever key is written, dropped,
// or the cache is reset. Reads capture it before going to storage and hand
// it to AddIfCurrent.
func (c *Cache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key)
}

func (c *Cache) generation(key string) uint64 {
	if gen, ok := c.gens[key]; ok {
		return gen
	}
	return c.resetAt
}

// AddIfCurrent fills the cache with value read from storage, unless key was
// written or dropped since gen was taken. In that case the read is stale:
// the cached value is returned when there is one, nil when the key was
// dropped, and the read value, uncached, when the newer value was already
// evicted.
func (c *Cache) AddIfCurrent(key string, value any, gen uint64) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation(key) == gen {
		return c.addIfAbsent(key, value)
	}
	if existing, ok := c.values[key]; ok {
		c.touch(key)
		return merge.Clone(existing)
	}
	if !c.known[key] {
		return nil
	}
	return value
}

// AddIfAbsent stores value only when no value is cached for key, and
// returns whichever value the cache holds afterwards. Reads filling the
// cache use it so they never overwrite a value a write installed while the
// read was in flight.
func (c *Cache) AddIfAbsent(key string, value any) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addIfAbsent(key, value)
}

func (c *Cache) addIfAbsent(key string, value any) any {
	if existing, ok := c.values[key]; ok {
		c.touch(key)
		return merge.Clone(existing)
	}

	c.values[key] = merge.Clone(value)
	c.known[key] = true
	c.touch(key)
	return value
}

// Has reports whether a value is cached for key. A known key whose value
// was evicted or never loaded reports false.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.values[key]
	return ok
}

// Drop removes key entirely: value, known-keys membership, and recency.
func (c *Cache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.values, key)
	delete(c.known, key)
	c.forget(key)
	c.bump(key)
}

// Merge deep-merges patch, a mapping of key to partial value, into the
// cache in one pass. Every key in patch becomes known and most recently
// used. Tombstones inside partial values are removed, and a nil partial
// value drops its key.
func (c *Cache) Merge(patch any) error {
	p, ok := patch.(map[string]any)
	if !ok {
		return ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for key, partial := range p {
		if partial == nil {
			delete(c.values, key)
			delete(c.known, key)
			c.forget(key)
			c.bump(key)
			continue
		}
		c.values[key] = merge.Apply(c.values[key], partial)
		c.known[key] = true
		c.touch(key)
		c.bump(key)
	}
	return nil
}

// HasValueChanged reports whether candidate differs from the cached value
// for key. An uncached key compares as nil.
func (c *Cache) HasValueChanged(key string, candidate any) bool {
	c.mu.Lock()
	current := c.values[key]
	c.mu.Unlock()

	return !cmp.Equal(current, candidate, equalOpts)
}

// EvictLeastRecentlyUsed drops the values of the least recently used keys
// until no more than the configured maximum remain. Keys for which isPinned
// returns true are skipped. Evicted keys stay known. It returns the evicted
// keys, oldest first.
func (c *Cache) EvictLeastRecentlyUsed(isPinned func(key string) bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxRecent <= 0 || c.recent.Len() <= c.maxRecent {
		return nil
	}

	excess := c.recent.Len() - c.maxRecent
	var evicted []string

	for el := c.recent.Front(); el != nil && excess > 0; {
		next := el.Next()
		key := el.Value.(string)

		if isPinned == nil || !isPinned(key) {
			c.recent.Remove(el)
			delete(c.recentPos, key)
			delete(c.values, key)
			evicted = append(evicted, key)
			excess--
		}
		el = next
	}
	return evicted
}

// AddKnownKeys registers keys as existing in storage without loading them.
func (c *Cache) AddKnownKeys(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.known[key] = true
	}
}

// IsKnown reports whether key is known to exist in storage.
func (c *Cache) IsKnown(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.known[key]
}

// KnownKeys returns the known keys starting with prefix, sorted. An empty
// prefix returns every known key.
func (c *Cache) KnownKeys(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.known))
	for key := range c.known {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// RecentKeys returns the recently-used order, least recent first.
func (c *Cache) RecentKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.recent.Len())
	for el := c.recent.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(string))
	}
	return keys
}

// Len returns the number of cached values.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Reset empties the cache. Pending tasks keep running but are no longer
// shared with new callers.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.values = make(map[string]any)
	c.known = make(map[string]bool)
	c.recent.Init()
	c.recentPos = make(map[string]*list.Element)
	c.tasks = make(map[string]*Task)
	c.gens = make(map[string]uint64)
	c.clock++
	c.resetAt = c.clock
}
