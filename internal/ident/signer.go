// Package ident holds the signing collaborator abstraction: who the logged-in
// account is, how drafts get signed, and the readiness probe used to detect a
// signer that is not immediately available.
package ident

import (
	"context"
	"fmt"
	"strings"

	"github.com/blkluv/nostatus/internal/models"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Signer is the external signing collaborator. It may be backed by a local
// key, a hardware device or a remote signer; callers must treat every method
// as fallible and must not cache signatures.
type Signer interface {
	// PublicKey returns the account identity. It errors while the signer is
	// not ready; the Probe turns that into a bounded readiness check.
	PublicKey(ctx context.Context) (string, error)
	// SignEvent fills in pubkey, id and signature of the draft.
	SignEvent(ctx context.Context, event *nostr.Event) error
	// Relays reports the signer's own relay configuration, or nil when it
	// has none to offer.
	Relays(ctx context.Context) (models.RelayList, error)
}

// KeySigner signs with an in-process secret key.
type KeySigner struct {
	sk     string
	pk     string
	relays models.RelayList
}

// NewKeySigner builds a signer from a hex or nsec-encoded secret key. The
// optional relay list is what Relays reports.
func NewKeySigner(secret string, relays models.RelayList) (*KeySigner, error) {
	sk := strings.TrimSpace(secret)
	if strings.HasPrefix(sk, "nsec") {
		prefix, value, err := nip19.Decode(sk)
		if err != nil || prefix != "nsec" {
			return nil, fmt.Errorf("invalid nsec key: %w", err)
		}
		sk = value.(string)
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}

	return &KeySigner{sk: sk, pk: pk, relays: relays}, nil
}

// PublicKey returns the derived identity.
func (s *KeySigner) PublicKey(ctx context.Context) (string, error) {
	return s.pk, nil
}

// SignEvent signs the draft in place.
func (s *KeySigner) SignEvent(ctx context.Context, event *nostr.Event) error {
	return event.Sign(s.sk)
}

// Relays returns the configured relay list, nil when none was given.
func (s *KeySigner) Relays(ctx context.Context) (models.RelayList, error) {
	return s.relays, nil
}
