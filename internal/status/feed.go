package status

import (
	"sort"

	"github.com/blkluv/nostatus/internal/models"
)

// Feed derives the ordered feed from a status snapshot: accounts with the
// most recently updated status first, ties broken by ascending identity so
// the order is deterministic.
func Feed(snapshot map[string]*models.UserStatus) []string {
	type entry struct {
		pubkey    string
		updatedAt int64
	}

	entries := make([]entry, 0, len(snapshot))
	for pubkey, status := range snapshot {
		entries = append(entries, entry{pubkey: pubkey, updatedAt: status.LastUpdated()})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].updatedAt != entries[j].updatedAt {
			return entries[i].updatedAt > entries[j].updatedAt
		}
		return entries[i].pubkey < entries[j].pubkey
	})

	feed := make([]string, len(entries))
	for i, e := range entries {
		feed[i] = e.pubkey
	}
	return feed
}
