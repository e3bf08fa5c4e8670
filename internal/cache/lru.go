// Package cache implements the LRU+TTL primitive used by the AI provider
// router (C4) and reused by the webhook ingress (C13) for delivery-ID
// dedup. It is the "map plus an access-ordered list" data structure
// called for in spec.md §9, with insertion-order-as-recency semantics:
// every Get that hits moves the entry to the MRU end.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time // zero value means "never expires"
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Stats mirrors the accessor contract in spec.md §4.4.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Sets        int64
	Deletes     int64
	Size        int
	MaxSize     int
}

// HitRate renders hits/(hits+misses) as a fixed two-decimal percentage,
// returning "0.00%" rather than dividing by zero when no Get has happened.
func (s Stats) HitRate() string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(s.Hits)/float64(total)*100)
}

// LRU is a mutex-guarded, fixed-capacity, TTL-aware least-recently-used
// cache. All operations are O(1) except Sweep, which is O(n) over the
// entries it scans.
type LRU struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration // 0 = entries never expire
	items   map[string]*list.Element
	order   *list.List // front = MRU, back = LRU

	stats Stats
}

// New creates an LRU cache. maxSize must be > 0.
func New(maxSize int, ttl time.Duration) *LRU {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRU{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value for key. A hit moves the entry to the MRU
// end. An expired entry is deleted in place and reported as a miss.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired(time.Now()) {
		c.removeElement(el)
		c.stats.Misses++
		c.stats.Expirations++
		return nil, false
	}
	c.order.MoveToFront(el)
	c.stats.Hits++
	return e.value, true
}

// Set inserts or updates key. When the cache is at maxSize and key is new,
// the least-recently-used entry is evicted first.
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		c.stats.Sets++
		return
	}

	if len(c.items) >= c.maxSize {
		back := c.order.Back()
		if back != nil {
			c.removeElement(back)
			c.stats.Evictions++
		}
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el
	c.stats.Sets++
}

// Delete removes key if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
		c.stats.Deletes++
	}
}

// removeElement removes el from both the map and the list. Callers must
// hold c.mu.
func (c *LRU) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(el)
}

// Sweep deletes every currently-expired entry and returns how many were
// removed. It is O(n) over the entries scanned.
func (c *LRU) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if e.expired(now) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	c.stats.Expirations += int64(removed)
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is done.
func (c *LRU) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Stats returns a snapshot of the cache's counters. O(1).
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	s.MaxSize = c.maxSize
	return s
}
