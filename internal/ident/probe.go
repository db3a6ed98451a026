package ident

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrUnavailable is returned when the signer never became ready within the
// allowed number of attempts.
var ErrUnavailable = errors.New("signer unavailable")

// State is the readiness of the signing collaborator.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateAvailable
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAvailable:
		return "available"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

const (
	defaultProbeInterval = 500 * time.Millisecond
	defaultProbeAttempts = 10
)

// Probe polls a signer for its identity on a fixed interval, giving up after
// a bounded number of attempts instead of waiting forever on a signer that
// will never appear.
type Probe struct {
	signer      Signer
	interval    time.Duration
	maxAttempts int

	mu       sync.Mutex
	state    State
	attempts int
}

// NewProbe creates a probe. Zero interval or attempts select the defaults.
func NewProbe(signer Signer, interval time.Duration, maxAttempts int) *Probe {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultProbeAttempts
	}
	return &Probe{signer: signer, interval: interval, maxAttempts: maxAttempts}
}

// Run polls until the signer reports an identity, the attempts run out, or
// the context ends. The first attempt happens immediately.
func (p *Probe) Run(ctx context.Context) (string, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastErr error
	for {
		p.setState(StateChecking)

		pubkey, err := p.signer.PublicKey(ctx)
		if err == nil && pubkey != "" {
			p.setState(StateAvailable)
			return pubkey, nil
		}
		if err == nil {
			err = errors.New("empty identity")
		}
		lastErr = err

		attempts := p.incAttempts()
		if attempts >= p.maxAttempts {
			p.setState(StateUnavailable)
			log.Printf("[IDENT] signer not ready after %d attempts: %v", attempts, lastErr)
			return "", fmt.Errorf("after %d attempts: %w", attempts, ErrUnavailable)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.setState(StateUnknown)
			return "", ctx.Err()
		}
	}
}

// State returns the current probe state.
func (p *Probe) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many failed attempts have been made.
func (p *Probe) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *Probe) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Probe) incAttempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	return p.attempts
}
