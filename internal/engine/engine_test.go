package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"
	"github.com/blkluv/nostatus/internal/status"

	"github.com/go-playground/assert/v2"
	"github.com/nbd-wtf/go-nostr"
)

var followedPubkey = strings.Repeat("b2", 32)

// fakeTransport serves canned account data, profile and status events, and
// records publishes and relay switches.
type fakeTransport struct {
	mu            sync.Mutex
	fetchEvents   map[int]*nostr.Event
	profileEvents []*nostr.Event
	statusHistory []*nostr.Event
	live          chan *nostr.Event
	published     []nostr.Event
	publishRelays []string
	publishErr    error
	switched      []models.RelayList
	fetchCalls    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		fetchEvents: make(map[int]*nostr.Event),
		live:        make(chan *nostr.Event, 16),
	}
}

func (f *fakeTransport) FetchLast(ctx context.Context, relays []string, filter nostr.Filter) *nostr.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return f.fetchEvents[filter.Kinds[0]]
}

func (f *fakeTransport) Stream(ctx context.Context, relays []string, filter nostr.Filter) <-chan *nostr.Event {
	f.mu.Lock()
	var events []*nostr.Event
	switch filter.Kinds[0] {
	case models.KindProfile:
		events = append(events, f.profileEvents...)
	case models.KindUserStatus:
		events = append(events, f.statusHistory...)
	}
	f.mu.Unlock()

	out := make(chan *nostr.Event)
	go func() {
		defer close(out)
		for _, event := range events {
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeTransport) Subscribe(ctx context.Context, relays []string, filter nostr.Filter) (<-chan *nostr.Event, func()) {
	out := make(chan *nostr.Event)
	go func() {
		defer close(out)
		for {
			select {
			case event := <-f.live:
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() {}
}

func (f *fakeTransport) Publish(ctx context.Context, relays []string, event nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, event)
	f.publishRelays = relays
	return nil
}

func (f *fakeTransport) Switch(list models.RelayList) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.switched = append(f.switched, list)
}

func (f *fakeTransport) lastSwitched() models.RelayList {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.switched) == 0 {
		return nil
	}
	return f.switched[len(f.switched)-1]
}

// fakeSessions keeps the session in memory.
type fakeSessions struct {
	mu       sync.Mutex
	identity string
	saveErr  error
}

func (s *fakeSessions) SaveIdentity(pubkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.identity = pubkey
	return nil
}

func (s *fakeSessions) Identity() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, nil
}

func (s *fakeSessions) ClearIdentity() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = ""
	return nil
}

func (s *fakeSessions) stored() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// accountTransport builds a transport preloaded with the account's metadata
// events, one followed profile and one followed status.
func accountTransport(accountPubkey string) *fakeTransport {
	transport := newFakeTransport()
	transport.fetchEvents[models.KindProfile] = &nostr.Event{
		ID: "ev-own-profile", PubKey: accountPubkey, Kind: models.KindProfile,
		CreatedAt: 1000, Content: `{"name":"me"}`,
	}
	transport.fetchEvents[models.KindContacts] = &nostr.Event{
		ID: "ev-contacts", PubKey: accountPubkey, Kind: models.KindContacts,
		CreatedAt: 1000, Tags: nostr.Tags{nostr.Tag{"p", followedPubkey}},
	}
	transport.fetchEvents[models.KindRelayList] = &nostr.Event{
		ID: "ev-relays", PubKey: accountPubkey, Kind: models.KindRelayList,
		CreatedAt: 1100, Tags: nostr.Tags{
			nostr.Tag{"r", "wss://read.example.com", "read"},
			nostr.Tag{"r", "wss://write.example.com", "write"},
		},
	}
	transport.profileEvents = []*nostr.Event{{
		ID: "ev-friend-profile", PubKey: followedPubkey, Kind: models.KindProfile,
		CreatedAt: 900, Content: `{"name":"friend"}`,
	}}
	transport.statusHistory = []*nostr.Event{{
		ID: "ev-friend-status", PubKey: followedPubkey, Kind: models.KindUserStatus,
		CreatedAt: nostr.Now() - 100, Tags: nostr.Tags{nostr.Tag{"d", "general"}},
		Content: "on tour",
	}}
	return transport
}

func newTestEngine(t *testing.T) (*Engine, *fakeTransport, *fakeSessions, string) {
	t.Helper()

	sk := nostr.GeneratePrivateKey()
	signer, err := ident.NewKeySigner(sk, nil)
	if err != nil {
		t.Fatalf("key signer: %v", err)
	}
	pk, _ := signer.PublicKey(context.Background())

	transport := accountTransport(pk)
	sessions := &fakeSessions{}

	ctx, cancel := context.WithCancel(context.Background())
	eng := New(ctx, Options{
		Transport:     transport,
		Signer:        signer,
		Sessions:      sessions,
		DefaultRelays: []string{"wss://boot.example.com"},
		ProbeInterval: 10 * time.Millisecond,
		ProbeAttempts: 3,
	})
	t.Cleanup(func() {
		eng.Stop()
		cancel()
	})

	return eng, transport, sessions, pk
}

func TestEngine_LoginBringsEverythingUp(t *testing.T) {
	eng, transport, sessions, pk := newTestEngine(t)

	assert.Equal(t, "", eng.Identity())
	assert.Equal(t, false, eng.AccountDataAvailable())

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	assert.Equal(t, pk, eng.Identity())
	assert.Equal(t, true, eng.AccountDataAvailable())
	assert.Equal(t, pk, sessions.stored())

	meta := eng.Metadata()
	assert.Equal(t, "me", meta.Profile.Name)
	assert.Equal(t, []string{followedPubkey}, meta.Followings)

	// The hub was switched to the account's resolved relay list.
	switched := transport.lastSwitched()
	assert.Equal(t, []string{nostr.NormalizeURL("wss://read.example.com")}, switched.ReadURLs())
	assert.Equal(t, []string{nostr.NormalizeURL("wss://write.example.com")}, switched.WriteURLs())

	// Both sync workers come up and fill their maps.
	waitFor(t, "followed profile", func() bool {
		return eng.Profile(followedPubkey).Name == "friend"
	})
	waitFor(t, "followed status", func() bool {
		_, ok := eng.Status(followedPubkey)
		return ok
	})
	waitFor(t, "live sync", func() bool { return eng.SyncState() == status.StateLive })

	assert.Equal(t, []string{followedPubkey}, eng.Feed())
}

func TestEngine_UnknownProfileIsPlaceholder(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	p := eng.Profile(followedPubkey)
	assert.Equal(t, true, p.IsPlaceholder())
	assert.Equal(t, followedPubkey, p.Pubkey)
}

func TestEngine_UpdatesSignalOnChange(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	select {
	case <-eng.Updates():
	case <-time.After(3 * time.Second):
		t.Fatal("no update signal after login")
	}
}

func TestEngine_UpdateMyStatus(t *testing.T) {
	eng, transport, _, pk := newTestEngine(t)

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	waitFor(t, "live sync", func() bool { return eng.SyncState() == status.StateLive })

	event, err := eng.UpdateMyStatus(context.Background(), status.Input{Content: "shipping"})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	assert.Equal(t, pk, event.PubKey)

	// Applied locally right away, visible in map and feed.
	entry, ok := eng.Status(pk)
	assert.Equal(t, true, ok)
	assert.Equal(t, "shipping", entry.General.Content)

	feed := eng.Feed()
	assert.Equal(t, pk, feed[0])

	// Transmitted to the account's write relays.
	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, 1, len(transport.published))
	assert.Equal(t, []string{nostr.NormalizeURL("wss://write.example.com")}, transport.publishRelays)
}

func TestEngine_UpdateMyStatusTransportFailure(t *testing.T) {
	eng, transport, _, pk := newTestEngine(t)

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}

	transport.mu.Lock()
	transport.publishErr = errors.New("relays unreachable")
	transport.mu.Unlock()

	_, err := eng.UpdateMyStatus(context.Background(), status.Input{Content: "optimistic"})
	if err == nil {
		t.Fatal("expected a transmission error")
	}

	// The optimistic local apply sticks.
	entry, ok := eng.Status(pk)
	assert.Equal(t, true, ok)
	assert.Equal(t, "optimistic", entry.General.Content)
}

func TestEngine_UpdateMyStatusRequiresLogin(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	_, err := eng.UpdateMyStatus(context.Background(), status.Input{Content: "nope"})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestEngine_Logout(t *testing.T) {
	eng, transport, sessions, _ := newTestEngine(t)

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	waitFor(t, "followed profile", func() bool {
		return eng.Profile(followedPubkey).Name == "friend"
	})
	waitFor(t, "followed status", func() bool {
		_, ok := eng.Status(followedPubkey)
		return ok
	})

	eng.Logout()

	assert.Equal(t, "", eng.Identity())
	assert.Equal(t, false, eng.AccountDataAvailable())
	assert.Equal(t, "", sessions.stored())
	assert.Equal(t, 0, len(eng.Profiles()))
	assert.Equal(t, 0, len(eng.Statuses()))
	assert.Equal(t, 0, len(eng.Feed()))
	assert.Equal(t, status.StateIdle, eng.SyncState())

	// The relay set was dropped too.
	assert.Equal(t, 0, len(transport.lastSwitched()))
}

func TestEngine_ResumeWithoutSession(t *testing.T) {
	eng, transport, _, _ := newTestEngine(t)

	resumed, err := eng.Resume(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, false, resumed)
	assert.Equal(t, "", eng.Identity())

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, 0, transport.fetchCalls)
}

func TestEngine_ResumeWithSession(t *testing.T) {
	eng, _, sessions, pk := newTestEngine(t)
	sessions.SaveIdentity(pk)

	resumed, err := eng.Resume(context.Background())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	assert.Equal(t, true, resumed)
	assert.Equal(t, pk, eng.Identity())
	assert.Equal(t, true, eng.AccountDataAvailable())
}

func TestEngine_Refresh(t *testing.T) {
	eng, transport, _, pk := newTestEngine(t)

	if err := eng.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	assert.Equal(t, 1, len(eng.Metadata().Followings))

	// The account follows someone new; a refresh picks it up wholesale.
	otherPubkey := strings.Repeat("c3", 32)
	transport.mu.Lock()
	transport.fetchEvents[models.KindContacts] = &nostr.Event{
		ID: "ev-contacts-2", PubKey: pk, Kind: models.KindContacts,
		CreatedAt: 2000, Tags: nostr.Tags{
			nostr.Tag{"p", followedPubkey},
			nostr.Tag{"p", otherPubkey},
		},
	}
	transport.mu.Unlock()

	if err := eng.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	assert.Equal(t, []string{followedPubkey, otherPubkey}, eng.Metadata().Followings)
}

func TestEngine_RefreshRequiresLogin(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	if err := eng.Refresh(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}
