package relay

import (
	"log"
	"sync"
	"time"
)

const (
	maxFailures     = 3
	banDuration     = 15 * time.Minute
	failureResetAge = 10 * time.Minute
)

type relayState struct {
	failures    int
	lastFailure time.Time
	bannedUntil time.Time
}

// HealthTracker counts per-relay failures and temporarily bans relays that
// keep failing, so fetch rounds stop waiting on dead servers.
type HealthTracker struct {
	relays map[string]*relayState
	mu     sync.RWMutex
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{relays: make(map[string]*relayState)}
}

// Usable filters out relays that are currently banned.
func (t *HealthTracker) Usable(urls []string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	usable := make([]string, 0, len(urls))
	for _, url := range urls {
		if state, exists := t.relays[url]; exists && now.Before(state.bannedUntil) {
			continue
		}
		usable = append(usable, url)
	}
	return usable
}

// Banned reports whether the relay is currently banned.
func (t *HealthTracker) Banned(url string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, exists := t.relays[url]
	return exists && time.Now().Before(state.bannedUntil)
}

// RecordFailure counts a failure. Old failures age out; reaching the limit
// within the window bans the relay for a while.
func (t *HealthTracker) RecordFailure(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	state, exists := t.relays[url]
	if !exists || now.Sub(state.lastFailure) > failureResetAge {
		t.relays[url] = &relayState{failures: 1, lastFailure: now}
		return
	}

	state.failures++
	state.lastFailure = now
	if state.failures >= maxFailures && now.After(state.bannedUntil) {
		state.bannedUntil = now.Add(banDuration)
		log.Printf("[RELAY] banned %s for %v after %d failures (last: %v)",
			url, banDuration, state.failures, err)
	}
}

// RecordSuccess wipes the failure history of a relay.
func (t *HealthTracker) RecordSuccess(url string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.relays, url)
}

// Stats returns how many relays are failing and how many of those are banned.
func (t *HealthTracker) Stats() (failing, banned int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := time.Now()
	failing = len(t.relays)
	for _, state := range t.relays {
		if now.Before(state.bannedUntil) {
			banned++
		}
	}
	return
}
