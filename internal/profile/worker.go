package profile

import (
	"context"
	"log"
	"sync"

	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"github.com/oklog/ulid/v2"
)

// Transport is the slice of the relay hub the worker needs.
type Transport interface {
	Stream(ctx context.Context, relays []string, filter nostr.Filter) <-chan *nostr.Event
}

// Worker streams the latest profile event per followed author into the
// store. Each restart fully tears down the previous fetch before starting,
// so at most one fetch is in flight and no stale result crosses generations.
type Worker struct {
	transport Transport
	store     *Store
	baseCtx   context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	gen    ulid.ULID
}

// NewWorker creates a worker bound to ctx; cancelling ctx stops any fetch.
func NewWorker(ctx context.Context, transport Transport, store *Store) *Worker {
	return &Worker{transport: transport, store: store, baseCtx: ctx}
}

// Restart cancels the in-flight fetch, waits for it to wind down, and starts
// a fresh one for the given followings against the given read relays. Empty
// followings clear the profile map instead.
func (w *Worker) Restart(followings, readRelays []string) {
	w.mu.Lock()
	w.teardownLocked()
	w.gen = ulid.Make()

	if len(followings) == 0 {
		w.mu.Unlock()
		w.store.Clear()
		log.Printf("[PROFILE] no followings, profile map cleared")
		return
	}

	ctx, cancel := context.WithCancel(w.baseCtx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	gen := w.gen
	w.mu.Unlock()

	go w.run(ctx, gen, followings, readRelays, done)
}

// Stop cancels the in-flight fetch and waits for teardown.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.teardownLocked()
	w.mu.Unlock()
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

	log.Printf("[PROFILE] syncing profiles of %d followings from %d relays", len(followings), len(relays))

	filter := nostr.Filter{
		Kinds:   []int{models.KindProfile},
		Authors: followings,
	}

	latest := make(map[string]int64, len(followings))
	updates := 0
	for event := range w.transport.Stream(ctx, relays, filter) {
		if w.stale(gen) {
			return
		}
		if int64(event.CreatedAt) <= latest[event.PubKey] {
			continue
		}
		parsed, err := models.ParseProfile(event)
		if err != nil {
			continue
		}
		latest[event.PubKey] = int64(event.CreatedAt)
		w.store.Set(parsed)
		updates++
	}

	// Authors with no event simply keep their placeholder profile.
	if ctx.Err() == nil {
		log.Printf("[PROFILE] profile sync complete: %d updates for %d followings", updates, len(followings))
	}
}

func (w *Worker) stale(gen ulid.ULID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen != gen
}
