package models

// Category identifies a status slot. The set is closed: events carrying any
// other category are discarded, never stored.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryMusic   Category = "music"
)

// ParseCategory maps a "d" tag value to a known category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryGeneral, CategoryMusic:
		return Category(s), true
	}
	return "", false
}

// StatusData is one live status for a single (account, category) slot.
// Empty Content is a tombstone used to clear the slot, never a displayable value.
type StatusData struct {
	Category   Category `json:"category"`
	Content    string   `json:"content"`
	LinkURL    string   `json:"link_url,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	Expiration *int64   `json:"expiration,omitempty"`
}

// Expired reports whether the status carries an expiration that is not in the
// future relative to now (unix seconds).
func (s *StatusData) Expired(now int64) bool {
	return s.Expiration != nil && *s.Expiration <= now
}

// UserStatus holds the live status slots of one account. An entry with both
// slots absent must not exist in the status map; it is deleted instead.
type UserStatus struct {
	Pubkey  string      `json:"pubkey"`
	General *StatusData `json:"general,omitempty"`
	Music   *StatusData `json:"music,omitempty"`
}

// Slot returns the status stored for the given category, or nil.
func (u *UserStatus) Slot(c Category) *StatusData {
	if u == nil {
		return nil
	}
	switch c {
	case CategoryGeneral:
		return u.General
	case CategoryMusic:
		return u.Music
	}
	return nil
}

// WithSlot returns a copy of u with the given category slot replaced.
// Pass nil to clear the slot. The receiver is never mutated.
func (u *UserStatus) WithSlot(c Category, s *StatusData) *UserStatus {
	next := &UserStatus{}
	if u != nil {
		*next = *u
	}
	switch c {
	case CategoryGeneral:
		next.General = s
	case CategoryMusic:
		next.Music = s
	}
	return next
}

// Empty reports whether no slot holds a status.
func (u *UserStatus) Empty() bool {
	return u == nil || (u.General == nil && u.Music == nil)
}

// LastUpdated returns the most recent creation time across present slots,
// or zero when no slot is present.
func (u *UserStatus) LastUpdated() int64 {
	if u == nil {
		return 0
	}
	var at int64
	if u.General != nil && u.General.CreatedAt > at {
		at = u.General.CreatedAt
	}
	if u.Music != nil && u.Music.CreatedAt > at {
		at = u.Music.CreatedAt
	}
	return at
}
