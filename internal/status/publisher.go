package status

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/blkluv/nostatus/internal/ident"
	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
)

// PublishTransport is the slice of the relay hub the publisher needs.
type PublishTransport interface {
	Publish(ctx context.Context, relays []string, event nostr.Event) error
}

// Input is a new status as entered by the user. Empty content clears the
// current status. TTL zero means the status never expires.
type Input struct {
	Content string
	LinkURL string
	TTL     time.Duration
}

// Publisher builds, signs and transmits the user's own status updates.
type Publisher struct {
	transport PublishTransport
	signer    ident.Signer
	store     *Store
}

// NewPublisher creates a publisher applying its events to store.
func NewPublisher(transport PublishTransport, signer ident.Signer, store *Store) *Publisher {
	return &Publisher{transport: transport, signer: signer, store: store}
}

// Publish signs a "general" status event, applies it to the local state and
// transmits it to the write relays. A signing failure propagates and leaves
// local state untouched. The local apply is optimistic: transmission may
// still fail afterwards and is not rolled back.
func (p *Publisher) Publish(ctx context.Context, in Input, writeRelays []string) (*nostr.Event, error) {
	event := BuildStatusEvent(in, nostr.Now())
	if err := p.signer.SignEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("could not sign status event: %w", err)
	}

	if pubkey, status, ok := models.ParseUserStatus(event); ok {
		p.store.Apply(Update{Pubkey: pubkey, Status: status})
	}

	if err := p.transport.Publish(ctx, writeRelays, *event); err != nil {
		log.Printf("[STATUS] transmitting status %s failed: %v", event.ID, err)
		return event, err
	}
	return event, nil
}

// BuildStatusEvent constructs the unsigned draft for a "general" status with
// the given creation time.
func BuildStatusEvent(in Input, now nostr.Timestamp) *nostr.Event {
	tags := nostr.Tags{nostr.Tag{"d", string(models.CategoryGeneral)}}
	if in.LinkURL != "" {
		tags = append(tags, nostr.Tag{"r", in.LinkURL})
	}
	if in.TTL > 0 {
		expiration := int64(now) + int64(in.TTL/time.Second)
		tags = append(tags, nostr.Tag{"expiration", strconv.FormatInt(expiration, 10)})
	}

	return &nostr.Event{
		Kind:      models.KindUserStatus,
		CreatedAt: now,
		Tags:      tags,
		Content:   in.Content,
	}
}
