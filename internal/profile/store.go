// Package profile maintains the profile map of the followed accounts.
package profile

import (
	"sync"

	"github.com/blkluv/nostatus/internal/models"
)

// Store holds the profile of every followed account that has one. Readers
// get immutable snapshots: every update swaps in a fresh copy of the map, so
// a snapshot taken concurrently never changes underneath its holder.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	onChange func()
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{profiles: make(map[string]models.UserProfile)}
}

// OnChange registers the single listener notified after every swap.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Set replaces one account's profile.
func (s *Store) Set(p models.UserProfile) {
	s.mu.Lock()
	next := make(map[string]models.UserProfile, len(s.profiles)+1)
	for pubkey, existing := range s.profiles {
		next[pubkey] = existing
	}
	next[p.Pubkey] = p
	s.profiles = next
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Get returns one account's profile.
func (s *Store) Get(pubkey string) (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[pubkey]
	return p, ok
}

// Snapshot returns the current map. Callers must not mutate it.
func (s *Store) Snapshot() map[string]models.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profiles
}

// Clear drops every profile.
func (s *Store) Clear() {
	s.mu.Lock()
	s.profiles = make(map[string]models.UserProfile)
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Len returns the number of stored profiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
