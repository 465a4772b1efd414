// Package localcache implements the per-process L1 cache tier.
// See doc.go for complete package documentation.
package localcache

import (
	"container/list"
	"sync"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// Stats contains counters describing cache effectiveness.
// All counters are cumulative since cache creation.
type Stats struct {
	Hits      uint64 // Get calls that found the key
	Misses    uint64 // Get calls that did not
	Evictions uint64 // Entries removed by capacity pressure
	Len       int    // Current number of entries
}

// entry is the value stored in each recency-list element.
type entry[V any] struct {
	key   string
	value V
}

// Cache is a bounded, thread-safe, in-memory map from string keys to values
// with least-recently-used eviction. It is the only structure in the system
// touched by multiple local goroutines without an external lock, so all
// synchronization lives inside.
//
// All operations are synchronous and never perform I/O. The only failure
// mode is capacity-driven eviction, which is silent: callers must treat the
// cache as lossy and fall back to the distributed tier on a miss.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element // key -> recency list element
	order    *list.List               // front = most recently used

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most capacity entries. A non-positive
// capacity falls back to DefaultCapacity.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Get retrieves the value for key, marking it as recently used.
// The second return reports whether the key was present.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.MoveToFront(el)
	return el.Value.(*entry[V]).value, true
}

// Put stores value under key, overwriting any existing value and marking
// the key as most recently used. When the cache is full the least recently
// used entry is evicted to make room.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[V]).value = value
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value})
}

// Delete removes key from the cache. Removing an absent key is a no-op.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// ForEach calls fn for every entry in a point-in-time snapshot of the
// cache. The snapshot is taken under the lock but fn runs outside it, so
// fn may call back into the cache, and entries added or removed while the
// iteration runs may or may not be observed. Iteration stops early when fn
// returns false.
//
// Iteration order is most- to least-recently used and does not itself
// count as use.
func (c *Cache[V]) ForEach(fn func(key string, value V) bool) {
	c.mu.Lock()
	snapshot := make([]entry[V], 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[V])
		snapshot = append(snapshot, entry[V]{key: e.key, value: e.value})
	}
	c.mu.Unlock()

	for _, e := range snapshot {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Len returns the current number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cumulative cache statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Len:       c.order.Len(),
	}
}

// evictOldest removes the least recently used entry. Caller holds c.mu.
func (c *Cache[V]) evictOldest() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
	c.evictions++
}
