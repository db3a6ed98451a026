package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// Event kinds this engine consumes and produces.
const (
	KindProfile    = 0     // profile metadata, JSON content
	KindContacts   = 3     // contact list, "p" tags; content may carry the legacy relay map
	KindRelayList  = 10002 // relay list, "r" tags with optional read/write marker
	KindUserStatus = 30315 // user status, "d" tag selects the category
)

// ParseProfile decodes a profile metadata event into a UserProfile.
func ParseProfile(event *nostr.Event) (UserProfile, error) {
	var p UserProfile
	if err := json.Unmarshal([]byte(event.Content), &p); err != nil {
		return UserProfile{}, fmt.Errorf("invalid profile content: %w", err)
	}
	p.SrcEventID = event.ID
	p.Pubkey = event.PubKey
	return p, nil
}

// ParseFollowings extracts the followed pubkeys from a contact list event's
// "p" tags, deduplicated, in tag order.
func ParseFollowings(event *nostr.Event) []string {
	followings := make([]string, 0, len(event.Tags))
	seen := make(map[string]bool, len(event.Tags))
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "p" {
			pubkey := tag[1]
			if pubkey == "" || seen[pubkey] || !nostr.IsValidPublicKey(pubkey) {
				continue
			}
			seen[pubkey] = true
			followings = append(followings, pubkey)
		}
	}
	return followings
}

// ParseUserStatus reduces a status event to its slot data. It returns false
// when the event does not carry a supported category. A malformed expiration
// tag is treated as absent.
func ParseUserStatus(event *nostr.Event) (pubkey string, status StatusData, ok bool) {
	var dTag string
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			dTag = tag[1]
			break
		}
	}
	category, ok := ParseCategory(dTag)
	if !ok {
		return "", StatusData{}, false
	}

	status = StatusData{
		Category:  category,
		Content:   event.Content,
		CreatedAt: int64(event.CreatedAt),
	}
	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "r":
			if status.LinkURL == "" {
				status.LinkURL = tag[1]
			}
		case "expiration":
			if at, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				status.Expiration = &at
			}
		}
	}
	return event.PubKey, status, true
}
