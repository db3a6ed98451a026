// Package engine wires the bootstrap fetcher, the sync workers and the
// publisher into the surface the surrounding application consumes: login and
// logout, the current identity, profile and status lookups, the ordered
// feed, and the user's own status updates.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/blkluv/nostatus/internal/bootstrap"
	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"
	"github.com/blkluv/nostatus/internal/profile"
	"github.com/blkluv/nostatus/internal/relay"
	"github.com/blkluv/nostatus/internal/status"

	"github.com/nbd-wtf/go-nostr"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrNoAccountData = errors.New("account data not available")
)

// Transport is everything the engine and its workers need from the relay
// layer.
type Transport interface {
	FetchLast(ctx context.Context, relays []string, filter nostr.Filter) *nostr.Event
	Stream(ctx context.Context, relays []string, filter nostr.Filter) <-chan *nostr.Event
	Subscribe(ctx context.Context, relays []string, filter nostr.Filter) (<-chan *nostr.Event, func())
	Publish(ctx context.Context, relays []string, event nostr.Event) error
	Switch(list models.RelayList)
}

var _ Transport = (*relay.Hub)(nil)

// Sessions is the slice of the session store the engine needs.
type Sessions interface {
	SaveIdentity(pubkey string) error
	Identity() (string, error)
	ClearIdentity() error
}

// Options configures an Engine.
type Options struct {
	Transport     Transport
	Signer        ident.Signer
	Sessions      Sessions
	DefaultRelays []string
	ProbeInterval time.Duration
	ProbeAttempts int
}

// Engine owns the synchronized view of the logged-in account: its metadata,
// the profiles and statuses of its followings, and the feed derived from
// them.
type Engine struct {
	transport Transport
	signer    ident.Signer
	sessions  Sessions

	fetcher     *bootstrap.Fetcher
	profiles    *profile.Store
	statuses    *status.Store
	profileSync *profile.Worker
	statusSync  *status.Worker
	publisher   *status.Publisher

	probeInterval time.Duration
	probeAttempts int

	mu       sync.RWMutex
	identity string
	meta     *models.AccountMetadata

	updates chan struct{}
}

// New creates an engine bound to ctx; cancelling ctx stops its workers.
func New(ctx context.Context, opts Options) *Engine {
	e := &Engine{
		transport:     opts.Transport,
		signer:        opts.Signer,
		sessions:      opts.Sessions,
		probeInterval: opts.ProbeInterval,
		probeAttempts: opts.ProbeAttempts,
		updates:       make(chan struct{}, 1),
	}

	e.profiles = profile.NewStore()
	e.statuses = status.NewStore()
	e.fetcher = bootstrap.NewFetcher(opts.Transport, opts.Signer, opts.DefaultRelays)
	e.profileSync = profile.NewWorker(ctx, opts.Transport, e.profiles)
	e.statusSync = status.NewWorker(ctx, opts.Transport, e.statuses)
	e.publisher = status.NewPublisher(opts.Transport, opts.Signer, e.statuses)

	e.profiles.OnChange(e.notify)
	e.statuses.OnChange(e.notify)

	return e
}

// Login probes the signer for the account identity, persists it and brings
// the engine up for that account.
func (e *Engine) Login(ctx context.Context) error {
	probe := ident.NewProbe(e.signer, e.probeInterval, e.probeAttempts)
	pubkey, err := probe.Run(ctx)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := e.sessions.SaveIdentity(pubkey); err != nil {
		log.Printf("[ENGINE] could not persist session: %v", err)
	}
	log.Printf("[ENGINE] logged in as %s", models.ShortPubkey(pubkey))

	return e.activate(ctx, pubkey)
}

// Resume brings the engine up for a previously persisted session. It reports
// false when no session is stored.
func (e *Engine) Resume(ctx context.Context) (bool, error) {
	pubkey, err := e.sessions.Identity()
	if err != nil {
		return false, err
	}
	if pubkey == "" {
		return false, nil
	}

	log.Printf("[ENGINE] resuming session for %s", models.ShortPubkey(pubkey))
	return true, e.activate(ctx, pubkey)
}

func (e *Engine) activate(ctx context.Context, pubkey string) error {
	e.mu.Lock()
	e.identity = pubkey
	e.mu.Unlock()
	e.notify()

	meta, err := e.fetcher.FetchAccountData(ctx, pubkey)
	if err != nil {
		return fmt.Errorf("account data fetch aborted: %w", err)
	}

	e.applyAccountData(meta)
	return nil
}

// Refresh refetches the account's metadata and replaces it wholesale,
// restarting the sync workers against the new followings and relay list.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.RLock()
	pubkey := e.identity
	e.mu.RUnlock()
	if pubkey == "" {
		return ErrNotLoggedIn
	}

	meta, err := e.fetcher.FetchAccountData(ctx, pubkey)
	if err != nil {
		return err
	}
	e.applyAccountData(meta)
	return nil
}

func (e *Engine) applyAccountData(meta *models.AccountMetadata) {
	e.mu.Lock()
	e.meta = meta
	e.mu.Unlock()

	e.transport.Switch(meta.Relays)

	readRelays := meta.Relays.ReadURLs()
	e.profileSync.Restart(meta.Followings, readRelays)
	e.statusSync.Restart(meta.Followings, readRelays)
	e.notify()
}

// Logout clears the session, every synchronized map and every pending expiry
// timer, and drops the relay connections.
func (e *Engine) Logout() {
	e.mu.Lock()
	e.identity = ""
	e.meta = nil
	e.mu.Unlock()

	if err := e.sessions.ClearIdentity(); err != nil {
		log.Printf("[ENGINE] could not clear session: %v", err)
	}

	e.profileSync.Restart(nil, nil)
	e.statusSync.Restart(nil, nil)
	e.transport.Switch(models.RelayList{})
	e.notify()

	log.Printf("[ENGINE] logged out")
}

// Identity returns the logged-in account, or "" when logged out.
func (e *Engine) Identity() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

// AccountDataAvailable reports whether the logged-in account's metadata has
// been assembled.
func (e *Engine) AccountDataAvailable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity != "" && e.meta != nil
}

// Metadata returns the current account metadata, nil before bootstrap
// completes. The returned value is replaced wholesale and never mutated.
func (e *Engine) Metadata() *models.AccountMetadata {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta
}

// Profile returns the profile of an account, falling back to a placeholder
// for accounts whose profile has not arrived.
func (e *Engine) Profile(pubkey string) models.UserProfile {
	if p, ok := e.profiles.Get(pubkey); ok {
		return p
	}
	return models.PlaceholderProfile(pubkey)
}

// Profiles returns the current profile snapshot. Callers must not mutate it.
func (e *Engine) Profiles() map[string]models.UserProfile {
	return e.profiles.Snapshot()
}

// Status returns the live status entry of an account.
func (e *Engine) Status(pubkey string) (*models.UserStatus, bool) {
	return e.statuses.Get(pubkey)
}

// Statuses returns the current status snapshot. Callers must not mutate it.
func (e *Engine) Statuses() map[string]*models.UserStatus {
	return e.statuses.Snapshot()
}

// Feed returns the accounts with a live status, most recently updated first.
func (e *Engine) Feed() []string {
	return status.Feed(e.statuses.Snapshot())
}

// UpdateMyStatus signs and publishes a new status for the logged-in account,
// applying it locally before transmission.
func (e *Engine) UpdateMyStatus(ctx context.Context, in status.Input) (*nostr.Event, error) {
	e.mu.RLock()
	identity := e.identity
	meta := e.meta
	e.mu.RUnlock()

	if identity == "" {
		return nil, ErrNotLoggedIn
	}
	if meta == nil {
		return nil, ErrNoAccountData
	}

	return e.publisher.Publish(ctx, in, meta.Relays.WriteURLs())
}

// Updates signals after every change to the identity, the account metadata,
// the profile map or the status map. Signals are coalesced.
func (e *Engine) Updates() <-chan struct{} {
	return e.updates
}

// SyncState returns the status worker's position in its fetch cycle.
func (e *Engine) SyncState() status.State {
	return e.statusSync.State()
}

// Stats reports the sizes of the synchronized maps and the armed timers.
func (e *Engine) Stats() (profiles, statuses, timers int) {
	return e.profiles.Len(), e.statuses.Len(), e.statuses.TimerCount()
}

// Stop tears down the workers and disarms every timer. The session is kept.
func (e *Engine) Stop() {
	e.statusSync.Close()
	e.profileSync.Stop()
	e.statuses.Clear()
	log.Printf("[ENGINE] stopped")
}

func (e *Engine) notify() {
	select {
	case e.updates <- struct{}{}:
	default:
	}
}
