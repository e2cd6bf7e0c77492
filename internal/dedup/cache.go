package dedup

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Default cache settings.
const (
	DefaultCapacity      = 10_000
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Record is a transaction signature and when it was first seen.
type Record struct {
	TransactionID string
	FirstSeenAt   time.Time
}

// Cache is a bounded set of recently seen transaction signatures.
// Entries leave the cache when it is full (oldest insertion first) or when
// their TTL elapses, whichever comes first. Lookups never refresh an entry.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List               // front = oldest insertion
	index    map[string]*list.Element // value: *Record
	now      func() time.Time
}

// Option configures Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache. Non-positive capacity or ttl fall back to defaults.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seen reports whether id was already recorded and records it if not.
// Check and insert happen under one lock, so concurrent callers with the
// same id get exactly one false.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.index[id]; ok {
		if now.Sub(el.Value.(*Record).FirstSeenAt) < c.ttl {
			return true
		}
		c.removeElement(el)
	}

	for c.order.Len() >= c.capacity {
		c.removeElement(c.order.Front())
	}
	c.index[id] = c.order.PushBack(&Record{TransactionID: id, FirstSeenAt: now})
	return false
}

// Contains reports whether id is present and unexpired without recording it.
func (c *Cache) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[id]
	return ok && c.now().Sub(el.Value.(*Record).FirstSeenAt) < c.ttl
}

// Len returns the number of stored records, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Sweep removes expired records and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	// Insertion order is also FirstSeenAt order.
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if el.Value.(*Record).FirstSeenAt.After(cutoff) {
			break
		}
		c.removeElement(el)
		removed++
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := c.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.index, el.Value.(*Record).TransactionID)
}
