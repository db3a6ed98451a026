package status

import (
	"time"

	"github.com/blkluv/nostatus/internal/models"

	"github.com/puzpuzpuz/xsync/v3"
)

type slotKey struct {
	pubkey   string
	category models.Category
}

type timerHandle struct {
	timer *time.Timer
}

// Scheduler keeps at most one pending invalidation timer per
// (account, category) slot. Scheduling a key that already has a timer
// atomically cancels the old one first, so a slot can be rescheduled
// arbitrarily often and still fire exactly once, at the latest deadline.
// Firing only invokes the callback; the callback re-reads current state, so
// a timer that lost a race with a newer status is a harmless no-op.
type Scheduler struct {
	timers *xsync.MapOf[slotKey, *timerHandle]
	fire   func(pubkey string, category models.Category)
}

// NewScheduler creates a scheduler delivering expirations to fire.
func NewScheduler(fire func(pubkey string, category models.Category)) *Scheduler {
	return &Scheduler{
		timers: xsync.NewMapOf[slotKey, *timerHandle](),
		fire:   fire,
	}
}

// Schedule arms (or re-arms) the timer for one slot.
func (s *Scheduler) Schedule(pubkey string, category models.Category, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	key := slotKey{pubkey: pubkey, category: category}
	handle := &timerHandle{}

	// Starting the timer inside Compute makes cancel-and-replace atomic:
	// a concurrent firing of the old timer blocks on the same bucket until
	// the replacement is in place, then sees it is superseded.
	s.timers.Compute(key, func(old *timerHandle, loaded bool) (*timerHandle, bool) {
		if loaded {
			old.timer.Stop()
		}
		handle.timer = time.AfterFunc(ttl, func() {
			stale := true
			s.timers.Compute(key, func(current *timerHandle, loaded bool) (*timerHandle, bool) {
				if loaded && current == handle {
					stale = false
					return nil, true
				}
				// Superseded or cancelled while this firing was in flight.
				return current, !loaded
			})
			if !stale {
				s.fire(pubkey, category)
			}
		})
		return handle, false
	})
}

// Cancel disarms the timer for one slot, if any.
func (s *Scheduler) Cancel(pubkey string, category models.Category) {
	key := slotKey{pubkey: pubkey, category: category}
	s.timers.Compute(key, func(old *timerHandle, loaded bool) (*timerHandle, bool) {
		if loaded {
			old.timer.Stop()
		}
		return nil, true
	})
}

// CancelAll disarms every pending timer.
func (s *Scheduler) CancelAll() {
	s.timers.Range(func(key slotKey, handle *timerHandle) bool {
		handle.timer.Stop()
		s.timers.Delete(key)
		return true
	})
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	return s.timers.Size()
}
