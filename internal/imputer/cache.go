package imputer

import (
	"container/list"
	"sync"

	"github.com/couchcryptid/wildfire-imputer/internal/neighbors"
)

// indexCache is a thread-safe LRU of geo-filtered neighbor indices keyed by
// state and county. Cached indices are immutable and shared between calls.
type indexCache struct {
	maxEntries int

	mu      sync.Mutex
	order   *list.List // front is most recently used
	entries map[cacheKey]*list.Element
}

// cacheKey identifies a geo filter. Struct keys keep distinct (state, county)
// pairs distinct whatever characters they contain.
type cacheKey struct {
	state  string
	county string
}

type cachedIndex struct {
	key   cacheKey
	index *neighbors.Index
}

func newIndexCache(maxEntries int) *indexCache {
	return &indexCache{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[cacheKey]*list.Element),
	}
}

func geoKey(state, county string) cacheKey {
	return cacheKey{state: state, county: county}
}

func (c *indexCache) get(key cacheKey) (*neighbors.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cachedIndex).index, true
}

func (c *indexCache) put(key cacheKey, idx *neighbors.Index) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cachedIndex).index = idx
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cachedIndex{key: key, index: idx})
	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cachedIndex).key)
	}
}

func (c *indexCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
