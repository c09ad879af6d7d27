package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	id          string
	fingerprint string
	ts          time.Time
}

// Cache remembers the last indexed content fingerprint per document id for
// a bounded number of ids and a ttl. Each id holds exactly one entry in the
// eviction order; refreshing an id moves it to the back.
type Cache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
	}
}

// IsSeen reports whether id was last indexed with fingerprint inside the ttl window.
// It does not record anything; use MarkSeen after a successful write.
func (c *Cache) IsSeen(id, fingerprint string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		return false
	}
	e := el.Value.(*entry)
	return e.fingerprint == fingerprint && now.Sub(e.ts) <= c.ttl
}

// MarkSeen records fingerprint as the current content of id.
func (c *Cache) MarkSeen(id, fingerprint string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		e := el.Value.(*entry)
		e.fingerprint = fingerprint
		e.ts = now
		c.order.MoveToBack(el)
	} else {
		c.items[id] = c.order.PushBack(&entry{id: id, fingerprint: fingerprint, ts: now})
	}
	c.compact(now)
}

// Forget drops id, e.g. after the document was deleted from the index.
func (c *Cache) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.order.Remove(el)
		delete(c.items, id)
	}
}

// Len returns the number of tracked ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for front := c.order.Front(); front != nil; front = c.order.Front() {
		oldest := front.Value.(*entry)
		if c.order.Len() <= c.capacity && !oldest.ts.Before(cutoff) {
			return
		}
		c.order.Remove(front)
		delete(c.items, oldest.id)
	}
}
