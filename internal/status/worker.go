package status

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blkluv/nostatus/internal/models"
	"github.com/blkluv/nostatus/internal/relay"

	"github.com/nbd-wtf/go-nostr"
	"github.com/oklog/ulid/v2"
)

const seenTTL = 10 * time.Minute

// State is the worker's position in its fetch cycle.
type State int32

const (
	StateIdle State = iota
	StateFetchingHistory
	StateLive
)

func (s State) String() string {
	switch s {
	case StateFetchingHistory:
		return "fetching-history"
	case StateLive:
		return "live"
	}
	return "idle"
}

// Transport is the slice of the relay hub the worker needs.
type Transport interface {
	Stream(ctx context.Context, relays []string, filter nostr.Filter) <-chan *nostr.Event
	Subscribe(ctx context.Context, relays []string, filter nostr.Filter) (<-chan *nostr.Event, func())
}

// Worker keeps the status map in sync: it backfills history for the current
// followings, merging each event as it streams in, then attaches a realtime
// subscription pinned to "now". A restart cancels the previous generation,
// unsubscribes it and waits for it to finish before any new work starts, so
// no event of an old generation reaches the new one's state.
type Worker struct {
	transport Transport
	store     *Store
	seen      *relay.SeenCache
	baseCtx   context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	gen    ulid.ULID

	state atomic.Int32
}

// NewWorker creates a worker bound to ctx; cancelling ctx stops all work.
func NewWorker(ctx context.Context, transport Transport, store *Store) *Worker {
	return &Worker{
		transport: transport,
		store:     store,
		seen:      relay.NewSeenCache(seenTTL),
		baseCtx:   ctx,
	}
}

// Restart tears down the running generation and starts a new one for the
// given followings against the given read relays. Empty followings clear the
// status map and every pending expiry timer instead.
func (w *Worker) Restart(followings, readRelays []string) {
	w.mu.Lock()
	w.teardownLocked()
	w.gen = ulid.Make()

	if len(followings) == 0 {
		w.state.Store(int32(StateIdle))
		w.mu.Unlock()
		w.store.Clear()
		w.seen.Clear()
		log.Printf("[STATUS] no followings, status map cleared")
		return
	}

	w.state.Store(int32(StateFetchingHistory))
	ctx, cancel := context.WithCancel(w.baseCtx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	gen := w.gen
	w.mu.Unlock()

	go w.run(ctx, gen, followings, readRelays, done)
}

// Stop tears down the running generation without touching the status map.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.teardownLocked()
	w.state.Store(int32(StateIdle))
	w.mu.Unlock()
}

// Close stops the worker and releases its caches.
func (w *Worker) Close() {
	w.Stop()
	w.seen.Close()
}

// State returns the current sync state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) teardownLocked() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
}

func (w *Worker) run(ctx context.Context, gen ulid.ULID, followings, relays []string, done chan struct{}) {
	defer close(done)

	filter := nostr.Filter{
		Kinds:   []int{models.KindUserStatus},
		Authors: followings,
		Tags: nostr.TagMap{
			"d": {string(models.CategoryGeneral), string(models.CategoryMusic)},
		},
	}

	log.Printf("[STATUS] fetching status history for %d followings from %d relays",
		len(followings), len(relays))

	merged := 0
	for event := range w.transport.Stream(ctx, relays, filter) {
		if w.ingest(gen, event) {
			merged++
		}
	}
	if ctx.Err() != nil {
		return
	}

	if !w.markLive(gen) {
		return
	}

	since := nostr.Now()
	live := filter
	live.Since = &since

	events, stop := w.transport.Subscribe(ctx, relays, live)
	defer stop()

	log.Printf("[STATUS] history merged %d updates, now live", merged)

	for event := range events {
		w.ingest(gen, event)
	}
}

// ingest applies one event: stale generations and already-seen events are
// dropped, everything else goes through the merge policy.
func (w *Worker) ingest(gen ulid.ULID, event *nostr.Event) bool {
	if w.stale(gen) {
		return false
	}
	if w.seen.Seen(event.ID) {
		return false
	}
	pubkey, status, ok := models.ParseUserStatus(event)
	if !ok {
		return false
	}
	return w.store.Apply(Update{Pubkey: pubkey, Status: status})
}

func (w *Worker) stale(gen ulid.ULID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen != gen
}

func (w *Worker) markLive(gen ulid.ULID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.gen != gen {
		return false
	}
	w.state.Store(int32(StateLive))
	return true
}
