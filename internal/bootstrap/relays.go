// Package bootstrap resolves which relays to talk to for an account and
// fetches the account's profile, followings and relay list from them.
package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sort"

	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
)

// DefaultRelays is the hardcoded fallback relay set, used when an account's
// own relay preferences cannot be resolved.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.nostr.band",
	"wss://relay.primal.net",
	"wss://nos.lol",
	"wss://nostr.mom",
}

// BootstrapRelays is the resolved initial relay set. Default marks that the
// hardcoded fallback was used instead of the signer's own configuration.
type BootstrapRelays struct {
	URLs    []string
	Default bool
}

// ResolveBootstrapRelays asks the signer for its relay configuration and
// keeps the read-enabled relays. When the signer has none to offer, or none
// of them is readable, the default set is returned and marked as such.
func ResolveBootstrapRelays(ctx context.Context, signer ident.Signer, defaults []string) BootstrapRelays {
	if len(defaults) == 0 {
		defaults = DefaultRelays
	}

	list, err := signer.Relays(ctx)
	if err != nil {
		log.Printf("[BOOTSTRAP] signer relay lookup failed, using defaults: %v", err)
		return BootstrapRelays{URLs: defaults, Default: true}
	}

	reads := list.ReadURLs()
	if len(reads) == 0 {
		return BootstrapRelays{URLs: defaults, Default: true}
	}
	return BootstrapRelays{URLs: reads}
}

// ResolveRelayListFromEvents extracts an account's relay list from its
// metadata events. Only contact-list and relay-list events are considered,
// newest first regardless of kind; the first one that parses wins and
// unparseable events are skipped. When nothing parses, the fallback URLs are
// returned as read+write.
func ResolveRelayListFromEvents(events []*nostr.Event, fallback []string) models.RelayList {
	candidates := make([]*nostr.Event, 0, len(events))
	for _, event := range events {
		if event == nil {
			continue
		}
		if event.Kind == models.KindContacts || event.Kind == models.KindRelayList {
			candidates = append(candidates, event)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt > candidates[j].CreatedAt
	})

	for _, event := range candidates {
		list, err := parseRelayListEvent(event)
		if err != nil {
			log.Printf("[BOOTSTRAP] skipping unparseable relay list in event %s: %v", event.ID, err)
			continue
		}
		return list
	}

	if len(fallback) == 0 {
		fallback = DefaultRelays
	}
	log.Printf("[BOOTSTRAP] no relay list found, falling back to %d default relays", len(fallback))
	return FallbackRelayList(fallback)
}

// FallbackRelayList marks every URL as read+write.
func FallbackRelayList(urls []string) models.RelayList {
	list := make(models.RelayList, len(urls))
	for _, url := range urls {
		if normalized := nostr.NormalizeURL(url); normalized != "" {
			list[normalized] = models.RelayFlags{Read: true, Write: true}
		}
	}
	return list
}

var errEmptyRelayList = errors.New("no usable relay entries")

func parseRelayListEvent(event *nostr.Event) (models.RelayList, error) {
	switch event.Kind {
	case models.KindContacts:
		return parseLegacyRelayContent(event.Content)
	case models.KindRelayList:
		return parseRelayTags(event.Tags)
	}
	return nil, errors.New("not a relay list kind")
}

// parseLegacyRelayContent reads the relay map some contact-list events carry
// in their content field: {"wss://…": {"read": true, "write": true}, …}.
func parseLegacyRelayContent(content string) (models.RelayList, error) {
	var raw map[string]models.RelayFlags
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, err
	}

	list := make(models.RelayList, len(raw))
	for url, flags := range raw {
		normalized := nostr.NormalizeURL(url)
		if normalized == "" || (!flags.Read && !flags.Write) {
			continue
		}
		merged := list[normalized]
		merged.Read = merged.Read || flags.Read
		merged.Write = merged.Write || flags.Write
		list[normalized] = merged
	}
	if len(list) == 0 {
		return nil, errEmptyRelayList
	}
	return list, nil
}

// parseRelayTags reads "r" tags. A tag without a marker means read+write; a
// "read" or "write" marker restricts the relay to that use.
func parseRelayTags(tags nostr.Tags) (models.RelayList, error) {
	list := make(models.RelayList)
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		url := nostr.NormalizeURL(tag[1])
		if url == "" {
			continue
		}

		flags := models.RelayFlags{Read: true, Write: true}
		if len(tag) >= 3 {
			switch tag[2] {
			case "read":
				flags = models.RelayFlags{Read: true}
			case "write":
				flags = models.RelayFlags{Write: true}
			}
		}

		merged := list[url]
		merged.Read = merged.Read || flags.Read
		merged.Write = merged.Write || flags.Write
		list[url] = merged
	}
	if len(list) == 0 {
		return nil, errEmptyRelayList
	}
	return list, nil
}
