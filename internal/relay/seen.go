package relay

import (
	"sync"
	"time"
)

const cleanupInterval = time.Minute

// SeenCache remembers event IDs for a bounded time so the same event arriving
// from several relays is processed once. Entries expire on read and through a
// background sweep, keeping memory flat over long subscriptions.
type SeenCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

// NewSeenCache creates a cache whose entries live for ttl.
func NewSeenCache(ttl time.Duration) *SeenCache {
	c := &SeenCache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		done: make(chan struct{}),
	}

	go c.cleanupRoutine()

	return c
}

// Seen marks the ID and reports whether it was already present and fresh.
func (c *SeenCache) Seen(id string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if at, exists := c.seen[id]; exists && now.Sub(at) < c.ttl {
		return true
	}
	c.seen[id] = now
	return false
}

// Clear drops every entry.
func (c *SeenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = make(map[string]time.Time)
}

// Len returns the number of tracked IDs.
func (c *SeenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seen)
}

// Close stops the background sweep.
func (c *SeenCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *SeenCache) cleanupRoutine() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *SeenCache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, id)
		}
	}
}
