package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/time/rate"
)

const (
	// ConnectTimeout bounds every single-shot relay operation. A relay that
	// does not answer in time is excluded from that round, not retried.
	ConnectTimeout = 3 * time.Second

	reqRate  = 200 * time.Millisecond
	reqBurst = 10
)

var (
	ErrNoRelays      = errors.New("no usable relays")
	ErrPublishFailed = errors.New("event was not accepted by any relay")
)

// Hub owns the relay connection set and exposes the fetch, subscribe and
// publish primitives the sync workers run on. Connections are pooled and
// switched wholesale when the account's relay list is resolved.
type Hub struct {
	pool   *nostr.SimplePool
	health *HealthTracker

	current models.RelayList
	mu      sync.RWMutex

	relayLimiters map[string]*rate.Limiter
	limitersMu    sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a hub with an empty relay set.
func NewHub(ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)

	relayOptions := []nostr.RelayOption{
		nostr.WithNoticeHandler(func(notice string) {}),
	}

	return &Hub{
		pool:          nostr.NewSimplePool(hubCtx, nostr.WithRelayOptions(relayOptions...)),
		health:        NewHealthTracker(),
		current:       models.RelayList{},
		relayLimiters: make(map[string]*rate.Limiter),
		ctx:           hubCtx,
		cancel:        cancel,
	}
}

// Switch replaces the current relay set and closes connections to relays
// that are no longer part of it.
func (h *Hub) Switch(list models.RelayList) {
	normalized := make(models.RelayList, len(list))
	for url, flags := range list {
		if !flags.Read && !flags.Write {
			continue
		}
		normalized[nostr.NormalizeURL(url)] = flags
	}

	h.mu.Lock()
	h.current = normalized
	h.mu.Unlock()

	h.pool.Relays.Range(func(url string, relay *nostr.Relay) bool {
		if _, keep := normalized[url]; keep {
			return true
		}
		if relay != nil && relay.IsConnected() {
			if err := relay.Close(); err != nil {
				log.Printf("[RELAY] error closing %s: %v", url, err)
			}
		}
		h.pool.Relays.Delete(url)
		return true
	})

	log.Printf("[RELAY] switched relay set: read=%d write=%d",
		len(normalized.ReadURLs()), len(normalized.WriteURLs()))
}

// ReadRelays returns the read-enabled relays of the current set.
func (h *Hub) ReadRelays() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.ReadURLs()
}

// WriteRelays returns the write-enabled relays of the current set.
func (h *Hub) WriteRelays() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.WriteURLs()
}

// FetchLast returns the most recent event matching the filter across the
// given relays, or nil when none answers with one in time.
func (h *Hub) FetchLast(ctx context.Context, relays []string, filter nostr.Filter) *nostr.Event {
	usable := h.throttled(h.eligible(relays))
	if len(usable) == 0 {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	var latest *nostr.Event
	for re := range h.pool.FetchMany(fetchCtx, usable, filter) {
		if re.Event == nil {
			continue
		}
		if re.Relay != nil {
			h.health.RecordSuccess(re.Relay.URL)
		}
		if latest == nil || re.Event.CreatedAt > latest.CreatedAt {
			latest = re.Event
		}
	}
	return latest
}

// Stream fetches all stored events matching the filter and closes the
// returned channel once every relay reported end of stored events.
func (h *Hub) Stream(ctx context.Context, relays []string, filter nostr.Filter) <-chan *nostr.Event {
	out := make(chan *nostr.Event)

	usable := h.throttled(h.eligible(relays))
	if len(usable) == 0 {
		close(out)
		return out
	}

	events := h.pool.FetchMany(ctx, usable, filter)
	go func() {
		defer close(out)
		for re := range events {
			if re.Event == nil {
				continue
			}
			if re.Relay != nil {
				h.health.RecordSuccess(re.Relay.URL)
			}
			select {
			case out <- re.Event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Subscribe opens a live subscription on the given relays. The returned stop
// function unsubscribes; the channel closes once the subscription ends.
func (h *Hub) Subscribe(ctx context.Context, relays []string, filter nostr.Filter) (<-chan *nostr.Event, func()) {
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan *nostr.Event)

	usable := h.throttled(h.eligible(relays))
	if len(usable) == 0 {
		close(out)
		return out, cancel
	}

	events := h.pool.SubscribeMany(subCtx, usable, filter)
	go func() {
		defer close(out)
		for re := range events {
			if re.Event == nil {
				continue
			}
			select {
			case out <- re.Event:
			case <-subCtx.Done():
				return
			}
		}
	}()
	return out, cancel
}

// Publish sends a signed event to the given relays. Per-relay failures are
// recorded and logged; the call only errors when no relay accepted the event.
func (h *Hub) Publish(ctx context.Context, relays []string, event nostr.Event) error {
	usable := h.eligible(relays)
	if len(usable) == 0 {
		return ErrNoRelays
	}

	for _, url := range usable {
		if err := h.getRelayLimiter(url).Wait(ctx); err != nil {
			return err
		}
	}

	published := 0
	for result := range h.pool.PublishMany(ctx, usable, event) {
		if result.Error != nil {
			h.health.RecordFailure(result.RelayURL, result.Error)
			log.Printf("[RELAY] publish to %s failed: %v", result.RelayURL, result.Error)
			continue
		}
		h.health.RecordSuccess(result.RelayURL)
		published++
	}

	if published == 0 {
		return ErrPublishFailed
	}
	log.Printf("[RELAY] published event %s to %d/%d relays", event.ID, published, len(usable))
	return nil
}

// Stats reports the connection and health counters.
func (h *Hub) Stats() (connected, failing, banned int) {
	h.pool.Relays.Range(func(url string, relay *nostr.Relay) bool {
		if relay != nil && relay.IsConnected() {
			connected++
		}
		return true
	})
	failing, banned = h.health.Stats()
	return
}

// Stop closes every pooled connection and releases the hub.
func (h *Hub) Stop() {
	h.cancel()
	h.pool.Relays.Range(func(url string, relay *nostr.Relay) bool {
		if relay != nil && relay.IsConnected() {
			if err := relay.Close(); err != nil {
				log.Printf("[RELAY] error closing %s: %v", url, err)
			}
		}
		h.pool.Relays.Delete(url)
		return true
	})
}

// eligible normalizes the list and drops relays currently banned by the
// health tracker. When every relay is banned the full set is used anyway;
// a degraded fetch beats none.
func (h *Hub) eligible(relays []string) []string {
	normalized := normalizeURLs(relays)
	usable := h.health.Usable(normalized)
	if len(usable) == 0 && len(normalized) > 0 {
		log.Printf("[RELAY] all %d relays banned, using full set", len(normalized))
		return normalized
	}
	return usable
}

// throttled drops relays whose per-relay request limiter has no token. The
// limiter is politeness, not correctness: when it would empty the round the
// round proceeds unthrottled.
func (h *Hub) throttled(relays []string) []string {
	allowed := make([]string, 0, len(relays))
	for _, url := range relays {
		if h.getRelayLimiter(url).Allow() {
			allowed = append(allowed, url)
		}
	}
	if len(allowed) == 0 {
		return relays
	}
	return allowed
}

func (h *Hub) getRelayLimiter(url string) *rate.Limiter {
	h.limitersMu.Lock()
	defer h.limitersMu.Unlock()

	if limiter, exists := h.relayLimiters[url]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rate.Every(reqRate), reqBurst)
	h.relayLimiters[url] = limiter
	return limiter
}

func normalizeURLs(relays []string) []string {
	urls := make([]string, 0, len(relays))
	seen := make(map[string]bool, len(relays))
	for _, raw := range relays {
		url := nostr.NormalizeURL(raw)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		urls = append(urls, url)
	}
	return urls
}
