package relay

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestHealthTracker_BansAfterRepeatedFailures(t *testing.T) {
	tracker := NewHealthTracker()
	url := "wss://flaky.example.com"
	errConn := errors.New("connection refused")

	for i := 0; i < maxFailures-1; i++ {
		tracker.RecordFailure(url, errConn)
		assert.Equal(t, false, tracker.Banned(url))
	}

	tracker.RecordFailure(url, errConn)
	assert.Equal(t, true, tracker.Banned(url))

	failing, banned := tracker.Stats()
	assert.Equal(t, 1, failing)
	assert.Equal(t, 1, banned)
}

func TestHealthTracker_SuccessResets(t *testing.T) {
	tracker := NewHealthTracker()
	url := "wss://recovering.example.com"
	errConn := errors.New("timeout")

	tracker.RecordFailure(url, errConn)
	tracker.RecordFailure(url, errConn)
	tracker.RecordSuccess(url)

	// The failure count restarted, one more is not enough to ban.
	tracker.RecordFailure(url, errConn)
	assert.Equal(t, false, tracker.Banned(url))

	failing, banned := tracker.Stats()
	assert.Equal(t, 1, failing)
	assert.Equal(t, 0, banned)
}

func TestHealthTracker_UsableFiltersBanned(t *testing.T) {
	tracker := NewHealthTracker()
	good := "wss://good.example.com"
	bad := "wss://bad.example.com"
	errConn := errors.New("unreachable")

	for i := 0; i < maxFailures; i++ {
		tracker.RecordFailure(bad, errConn)
	}

	assert.Equal(t, []string{good}, tracker.Usable([]string{good, bad}))

	// Unknown relays pass through untouched.
	assert.Equal(t, []string{good}, tracker.Usable([]string{good}))
}
