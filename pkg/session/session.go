// Package session gates access to decrypted vault content behind a lock
// state machine. The session starts Locked; an unlock request runs the
// platform authentication challenge and moves through Authenticating to
// Unlocked on success. Backgrounding the application starts a grace
// timer: resuming within the grace period keeps the session unlocked,
// resuming after it relocks.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lock state of the session.
type State int

const (
	// StateLocked means no decrypted content may be produced.
	StateLocked State = iota
	// StateAuthenticating means an authentication challenge is in flight.
	StateAuthenticating
	// StateUnlocked means operations returning decrypted content may run.
	StateUnlocked
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateAuthenticating:
		return "authenticating"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// DefaultGracePeriod is how long the session may stay backgrounded
// without relocking on resume.
const DefaultGracePeriod = 5 * time.Second

// Sentinel errors.
var (
	// ErrNotUnlocked is returned by operations that require an unlocked
	// session while the session is in any other state.
	ErrNotUnlocked = errors.New("session: not unlocked")

	// ErrAuthenticationFailed indicates the challenge failed or was
	// cancelled by the user.
	ErrAuthenticationFailed = errors.New("session: authentication failed")

	// ErrCapabilityUnavailable indicates the platform reports no
	// authentication capability at all; the challenge was never started.
	ErrCapabilityUnavailable = errors.New("session: no authentication capability available")
)

// Authenticator runs the platform authentication challenge (biometric or
// passcode on the original platform; a passcode check here).
type Authenticator interface {
	// Available reports whether any authentication capability is enrolled.
	Available() bool
	// Authenticate blocks until the challenge completes. A nil return
	// means the user authenticated; any error means failure or cancel.
	Authenticate(ctx context.Context) error
}

// Lock is the session lock state machine. All methods are safe for
// concurrent use; concurrent unlock requests coalesce onto the single
// in-flight challenge.
type Lock struct {
	mu             sync.Mutex
	state          State
	auth           Authenticator
	grace          time.Duration
	backgroundedAt time.Time

	// inflight is closed when the current challenge finishes; inflightErr
	// carries its result. Joiners wait on the same channel.
	inflight    chan struct{}
	inflightErr error

	now func() time.Time // overridable in tests
}

// NewLock returns a Lock in StateLocked using the given authenticator.
// A non-positive grace period falls back to DefaultGracePeriod.
func NewLock(auth Authenticator, grace time.Duration) *Lock {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Lock{
		state: StateLocked,
		auth:  auth,
		grace: grace,
		now:   time.Now,
	}
}

// State returns the current lock state.
func (l *Lock) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RequireUnlocked returns nil when the session is unlocked and
// ErrNotUnlocked otherwise.
func (l *Lock) RequireUnlocked() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateUnlocked {
		return ErrNotUnlocked
	}
	return nil
}

// RequestUnlock runs the authentication challenge and blocks until it
// completes. Already-unlocked sessions return immediately. If a
// challenge is already in flight the call joins it instead of starting a
// second one. When the platform has no authentication capability the
// state stays Locked and ErrCapabilityUnavailable is returned without
// entering Authenticating.
func (l *Lock) RequestUnlock(ctx context.Context) error {
	l.mu.Lock()

	switch l.state {
	case StateUnlocked:
		l.mu.Unlock()
		return nil

	case StateAuthenticating:
		// Coalesce onto the in-flight challenge.
		done := l.inflight
		l.mu.Unlock()
		<-done
		l.mu.Lock()
		err := l.inflightErr
		l.mu.Unlock()
		return err
	}

	if !l.auth.Available() {
		l.mu.Unlock()
		return ErrCapabilityUnavailable
	}

	done := make(chan struct{})
	l.state = StateAuthenticating
	l.inflight = done
	l.mu.Unlock()

	// The challenge runs in its own goroutine; the caller (and any
	// joiners) resume when the platform reports a result.
	go func() {
		err := l.auth.Authenticate(ctx)

		l.mu.Lock()
		if err != nil {
			l.state = StateLocked
			l.inflightErr = fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		} else {
			l.state = StateUnlocked
			l.inflightErr = nil
			l.backgroundedAt = time.Time{}
		}
		l.inflight = nil
		l.mu.Unlock()
		close(done)
	}()

	<-done
	l.mu.Lock()
	err := l.inflightErr
	l.mu.Unlock()
	return err
}

// Relock forces the session back to Locked.
func (l *Lock) Relock() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateLocked
	l.backgroundedAt = time.Time{}
}

// MarkBackgrounded records the moment the application left the
// foreground. It has no effect unless the session is unlocked.
func (l *Lock) MarkBackgrounded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateUnlocked {
		l.backgroundedAt = l.now()
	}
}

// Resume decides whether the backgrounded session relocks: elapsed time
// within the grace period keeps the session unlocked, anything beyond it
// relocks. Returns the state after the decision.
func (l *Lock) Resume() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateUnlocked && !l.backgroundedAt.IsZero() {
		if l.now().Sub(l.backgroundedAt) > l.grace {
			l.state = StateLocked
		}
	}
	l.backgroundedAt = time.Time{}
	return l.state
}
