package bootstrap

import (
	"context"
	"log"
	"sync"

	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/singleflight"
)

// Transport is the slice of the relay hub the fetcher needs.
type Transport interface {
	FetchLast(ctx context.Context, relays []string, filter nostr.Filter) *nostr.Event
}

// Fetcher retrieves an account's profile, followings and relay list in one
// coordinated round, escalating once to the default relays when the
// preferred set turns out to lack the account's metadata.
type Fetcher struct {
	transport Transport
	signer    ident.Signer
	defaults  []string
	group     singleflight.Group
}

// NewFetcher creates a fetcher. Empty defaults select DefaultRelays.
func NewFetcher(transport Transport, signer ident.Signer, defaults []string) *Fetcher {
	if len(defaults) == 0 {
		defaults = DefaultRelays
	}
	return &Fetcher{transport: transport, signer: signer, defaults: defaults}
}

// FetchAccountData assembles the account's metadata. The result is always
// fully populated: a placeholder profile, an empty followings list and
// fallback relays stand in for whatever could not be fetched. Concurrent
// calls for the same account share one fetch.
func (f *Fetcher) FetchAccountData(ctx context.Context, pubkey string) (*models.AccountMetadata, error) {
	v, err, _ := f.group.Do(pubkey, func() (interface{}, error) {
		return f.fetch(ctx, pubkey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AccountMetadata), nil
}

type round struct {
	profile   *nostr.Event
	contacts  *nostr.Event
	relayList *nostr.Event
}

// insufficient reports whether the round is too incomplete to trust: no
// profile, or neither of the two events a relay list can come from.
func (r *round) insufficient() bool {
	return r.profile == nil || (r.contacts == nil && r.relayList == nil)
}

func (f *Fetcher) fetch(ctx context.Context, pubkey string) (*models.AccountMetadata, error) {
	boots := ResolveBootstrapRelays(ctx, f.signer, f.defaults)
	log.Printf("[BOOTSTRAP] fetching account data for %s from %d relays (default=%t)",
		models.ShortPubkey(pubkey), len(boots.URLs), boots.Default)

	res := f.fetchRound(ctx, boots.URLs, pubkey)

	// The signer's relays may be a personal subset that lacks the servers
	// where this account's metadata actually lives. One escalation to the
	// defaults, never more.
	if !boots.Default && res.insufficient() {
		log.Printf("[BOOTSTRAP] incomplete account data for %s, escalating to default relays",
			models.ShortPubkey(pubkey))
		res = f.fetchRound(ctx, f.defaults, pubkey)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.assemble(pubkey, res), nil
}

func (f *Fetcher) fetchRound(ctx context.Context, relays []string, pubkey string) *round {
	var r round
	var wg sync.WaitGroup

	fetchKind := func(kind int, dst **nostr.Event) {
		defer wg.Done()
		*dst = f.transport.FetchLast(ctx, relays, nostr.Filter{
			Kinds:   []int{kind},
			Authors: []string{pubkey},
			Limit:   1,
		})
	}

	wg.Add(3)
	go fetchKind(models.KindProfile, &r.profile)
	go fetchKind(models.KindContacts, &r.contacts)
	go fetchKind(models.KindRelayList, &r.relayList)
	wg.Wait()

	return &r
}

func (f *Fetcher) assemble(pubkey string, r *round) *models.AccountMetadata {
	profile := models.PlaceholderProfile(pubkey)
	if r.profile != nil {
		if parsed, err := models.ParseProfile(r.profile); err == nil {
			profile = parsed
		} else {
			log.Printf("[BOOTSTRAP] unparseable profile event %s: %v", r.profile.ID, err)
		}
	}

	var followings []string
	if r.contacts != nil {
		followings = models.ParseFollowings(r.contacts)
	}

	events := make([]*nostr.Event, 0, 2)
	if r.contacts != nil {
		events = append(events, r.contacts)
	}
	if r.relayList != nil {
		events = append(events, r.relayList)
	}
	relays := ResolveRelayListFromEvents(events, f.defaults)

	log.Printf("[BOOTSTRAP] account data ready for %s: profile=%t followings=%d relays=%d",
		models.ShortPubkey(pubkey), !profile.IsPlaceholder(), len(followings), len(relays))

	return &models.AccountMetadata{
		Profile:    profile,
		Followings: followings,
		Relays:     relays,
	}
}
