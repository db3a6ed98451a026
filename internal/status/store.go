package status

import (
	"log"
	"sync"
	"time"

	"github.com/blkluv/nostatus/internal/models"
)

// Store is the merged status map. Every accepted update swaps in a fresh
// copy of the map, so snapshots handed to readers never change underneath
// them. Only the merge policy and the expiry scheduler mutate it.
type Store struct {
	mu       sync.RWMutex
	statuses map[string]*models.UserStatus
	sched    *Scheduler
	onChange func()
	now      func() int64
}

// NewStore creates an empty store with its own expiry scheduler.
func NewStore() *Store {
	s := &Store{
		statuses: make(map[string]*models.UserStatus),
		now:      func() int64 { return time.Now().Unix() },
	}
	s.sched = NewScheduler(s.expire)
	return s
}

// OnChange registers the single listener notified after every change.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Apply runs one incoming status through the merge policy and, when it is
// accepted, updates the expiry timer of the touched slot. It reports whether
// the map changed.
func (s *Store) Apply(upd Update) bool {
	s.mu.Lock()
	now := s.now()
	current := s.statuses[upd.Pubkey]
	next, changed := applyStatusUpdate(current, upd, now)
	if !changed {
		s.mu.Unlock()
		return false
	}

	statuses := make(map[string]*models.UserStatus, len(s.statuses)+1)
	for pubkey, entry := range s.statuses {
		statuses[pubkey] = entry
	}
	if next == nil {
		delete(statuses, upd.Pubkey)
	} else {
		statuses[upd.Pubkey] = next
	}
	s.statuses = statuses

	category := upd.Status.Category
	if slot := next.Slot(category); slot != nil && slot.Expiration != nil {
		s.sched.Schedule(upd.Pubkey, category, time.Duration(*slot.Expiration-now)*time.Second)
	} else {
		s.sched.Cancel(upd.Pubkey, category)
	}

	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// expire is the scheduler callback. It re-reads current state, so firing for
// a slot that was meanwhile replaced or removed is a no-op.
func (s *Store) expire(pubkey string, category models.Category) {
	s.mu.Lock()
	now := s.now()
	current := s.statuses[pubkey]
	slot := current.Slot(category)
	if slot == nil || !slot.Expired(now) {
		s.mu.Unlock()
		return
	}

	next := current.WithSlot(category, nil)
	statuses := make(map[string]*models.UserStatus, len(s.statuses))
	for p, entry := range s.statuses {
		statuses[p] = entry
	}
	if next.Empty() {
		delete(statuses, pubkey)
	} else {
		statuses[pubkey] = next
	}
	s.statuses = statuses
	notify := s.onChange
	s.mu.Unlock()

	log.Printf("[STATUS] expired %s status of %s", category, models.ShortPubkey(pubkey))
	if notify != nil {
		notify()
	}
}

// Get returns one account's entry.
func (s *Store) Get(pubkey string) (*models.UserStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.statuses[pubkey]
	return entry, ok
}

// Snapshot returns the current map. Callers must not mutate it.
func (s *Store) Snapshot() map[string]*models.UserStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statuses
}

// Clear drops every entry and disarms every pending timer.
func (s *Store) Clear() {
	s.mu.Lock()
	s.statuses = make(map[string]*models.UserStatus)
	notify := s.onChange
	s.mu.Unlock()

	s.sched.CancelAll()
	if notify != nil {
		notify()
	}
}

// Len returns the number of accounts with a live status.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statuses)
}

// TimerCount returns the number of armed expiry timers.
func (s *Store) TimerCount() int {
	return s.sched.Len()
}
