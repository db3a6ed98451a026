package models

import "sort"

// UserProfile is the displayable metadata of one account. Two profiles are
// the same iff they come from the same source event, so comparison uses
// SrcEventID rather than field values. A placeholder profile (no event
// fetched yet) has an empty SrcEventID.
type UserProfile struct {
	SrcEventID  string `json:"-"`
	Pubkey      string `json:"-"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	About       string `json:"about,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Website     string `json:"website,omitempty"`
	NIP05       string `json:"nip05,omitempty"`
}

// PlaceholderProfile returns the profile used for an account whose metadata
// event has not been fetched (or does not exist).
func PlaceholderProfile(pubkey string) UserProfile {
	return UserProfile{Pubkey: pubkey}
}

// IsPlaceholder reports whether the profile was synthesized rather than
// parsed from an event.
func (p UserProfile) IsPlaceholder() bool {
	return p.SrcEventID == ""
}

// BestName picks the preferred display string: display_name, then name,
// then a shortened pubkey.
func (p UserProfile) BestName() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Name != "" {
		return p.Name
	}
	return ShortPubkey(p.Pubkey)
}

// ShortPubkey abbreviates a hex pubkey for display.
func ShortPubkey(pubkey string) string {
	if len(pubkey) <= 12 {
		return pubkey
	}
	return pubkey[:8] + "…" + pubkey[len(pubkey)-4:]
}

// RelayFlags marks how a relay may be used. An entry with both flags false
// is meaningless and must not appear in a RelayList.
type RelayFlags struct {
	Read  bool `json:"read"`
	Write bool `json:"write"`
}

// RelayList maps relay URLs to their usage flags.
type RelayList map[string]RelayFlags

// ReadURLs returns the read-enabled relay URLs in deterministic order.
func (rl RelayList) ReadURLs() []string {
	return rl.filter(func(f RelayFlags) bool { return f.Read })
}

// WriteURLs returns the write-enabled relay URLs in deterministic order.
func (rl RelayList) WriteURLs() []string {
	return rl.filter(func(f RelayFlags) bool { return f.Write })
}

// URLs returns every relay URL in deterministic order.
func (rl RelayList) URLs() []string {
	return rl.filter(func(RelayFlags) bool { return true })
}

func (rl RelayList) filter(keep func(RelayFlags) bool) []string {
	urls := make([]string, 0, len(rl))
	for url, flags := range rl {
		if keep(flags) {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

// AccountMetadata is the bootstrap result for one account: profile,
// followings and relay list. It is produced atomically and replaced
// wholesale on refetch, never partially mutated.
type AccountMetadata struct {
	Profile    UserProfile
	Followings []string
	Relays     RelayList
}
