// Package status maintains the merged status map of the followed accounts:
// one conflict-resolution policy shared by history backfill, the realtime
// feed and self-published events, plus the expiry scheduling that removes
// stale entries without further network activity.
package status

import "github.com/blkluv/nostatus/internal/models"

// Update is one incoming status event reduced to what the merge policy needs.
type Update struct {
	Pubkey string
	Status models.StatusData
}

// applyStatusUpdate merges one incoming status into an account's current
// entry and returns the resulting entry (nil means the whole entry is gone)
// plus whether anything changed. The policy is last-write-wins by creation
// time with ties favoring the stored value, so replaying any set of events
// in any order converges to the same state:
//
//  1. an update already expired at processing time is dropped, even if it
//     would win by timestamp;
//  2. an update for an unknown category is dropped;
//  3. an update older than or as old as the stored slot is dropped;
//  4. non-empty content replaces the slot, leaving the other slot alone;
//  5. empty content is a tombstone: the slot is removed, and when the other
//     slot is absent too the whole entry is removed.
func applyStatusUpdate(current *models.UserStatus, upd Update, now int64) (*models.UserStatus, bool) {
	incoming := upd.Status

	if incoming.Expired(now) {
		return current, false
	}
	if _, ok := models.ParseCategory(string(incoming.Category)); !ok {
		return current, false
	}

	existing := current.Slot(incoming.Category)
	if existing != nil && existing.CreatedAt >= incoming.CreatedAt {
		return current, false
	}

	if incoming.Content == "" {
		if existing == nil {
			return current, false
		}
		next := current.WithSlot(incoming.Category, nil)
		if next.Empty() {
			return nil, true
		}
		return next, true
	}

	base := current
	if base == nil {
		base = &models.UserStatus{Pubkey: upd.Pubkey}
	}
	status := incoming
	return base.WithSlot(incoming.Category, &status), true
}
