// Package cache memoizes alignment tables. Keys are witness-set digests;
// concurrent misses for one key share a single load.
package cache

import (
	"container/list"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Stats are counters since creation.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	if s.Hits+s.Misses == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Hits+s.Misses)
}

type item[V any] struct {
	key   string
	value V
}

// LRU is a bounded least-recently-used cache safe for concurrent use.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recent
	items    map[string]*list.Element
	stats    Stats
	group    singleflight.Group
}

// New returns a cache holding at most capacity entries. A capacity below one
// is treated as one.
func New[V any](capacity int) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		c.stats.Hits++
		return el.Value.(*item[V]).value, true
	}
	c.stats.Misses++
	var zero V
	return zero, false
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*item[V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&item[V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*item[V]).key)
		c.stats.Evictions++
	}
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of the counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.order.Len()
	s.Capacity = c.capacity
	return s
}

// Load returns the cached value for key or calls load, caching a successful
// result. Concurrent callers missing on the same key wait for one load. The
// boolean reports a cache hit; errors are never cached.
func (c *LRU[V]) Load(key string, load func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load()
		if err == nil {
			c.Put(key, v)
		}
		return v, err
	})
	return v.(V), false, err
}
