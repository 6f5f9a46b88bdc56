package resolve

import (
	"container/list"
	"strings"
	"sync"

	"github.com/arclane/ratelimitd"
)

// lru is a bounded, thread-safe least-recently-used cache of resolved
// configs. Eviction order mirrors cache.LocalCache's oldest-first policy,
// implemented here with container/list for O(1) promote-on-hit instead of a
// linear scan over fetch times.
type lru struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type lruEntry struct {
	key   string
	value ratelimitd.RateLimitConfig
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 10000
	}
	return &lru{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *lru) get(key string) (ratelimitd.RateLimitConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero ratelimitd.RateLimitConfig
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

func (c *lru) put(key string, value ratelimitd.RateLimitConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*lruEntry).key)
	}
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// removePrefix evicts every cached entry whose key starts with prefix —
// used to invalidate all context-fingerprint variants of a single logical
// key without clearing the whole cache.
func (c *lru) removePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, el := range c.items {
		if strings.HasPrefix(k, prefix) {
			c.order.Remove(el)
			delete(c.items, k)
		}
	}
}
