// Package resilience guards calls to remote services with a three-state
// circuit breaker (closed, open, half-open). When a dependency such as the
// phonetics extraction service fails repeatedly, the breaker rejects further
// calls immediately instead of letting every request wait out a timeout.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrUnavailable is returned by [Breaker.Do] when the breaker is open and the
// cooldown has not yet elapsed. Callers should treat it as a fast failure of
// the guarded dependency.
var ErrUnavailable = errors.New("resilience: dependency unavailable")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call. This is the normal state.
	Closed State = iota

	// Open rejects every call with [ErrUnavailable] until the cooldown
	// elapses.
	Open

	// HalfOpen lets a limited number of probe calls through to test whether
	// the dependency has recovered.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings tunes a [Breaker]. Zero values pick sensible defaults.
type Settings struct {
	// Name labels the breaker in log messages.
	Name string

	// FailureLimit is the number of consecutive failures before the breaker
	// opens. Default: 5.
	FailureLimit int

	// Cooldown is how long the breaker stays open before probing the
	// dependency again. Default: 30s.
	Cooldown time.Duration

	// ProbeLimit is how many probe calls may run while half-open before the
	// breaker decides to close or re-open. Default: 3.
	ProbeLimit int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name         string
	failureLimit int
	cooldown     time.Duration
	probeLimit   int

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	probeFail int
}

// NewBreaker creates a closed [Breaker] with the given settings.
func NewBreaker(s Settings) *Breaker {
	if s.FailureLimit <= 0 {
		s.FailureLimit = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.ProbeLimit <= 0 {
		s.ProbeLimit = 3
	}
	return &Breaker{
		name:         s.Name,
		failureLimit: s.FailureLimit,
		cooldown:     s.Cooldown,
		probeLimit:   s.ProbeLimit,
	}
}

// Do runs fn through the breaker. While open it returns [ErrUnavailable]
// without calling fn. While half-open only a limited number of probes are
// allowed through; a single probe failure re-opens the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrUnavailable
		}
		b.state = HalfOpen
		b.probes = 0
		b.probeFail = 0
		slog.Info("circuit breaker half-open", "name", b.name)
	case HalfOpen:
		if b.probes >= b.probeLimit {
			b.mu.Unlock()
			return ErrUnavailable
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.openedAt = time.Now()
	if probing {
		b.probeFail++
		b.state = Open
		b.failures = b.failureLimit
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.failureLimit {
		b.state = Open
		slog.Warn("circuit breaker opened",
			"name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probes-b.probeFail >= b.probeLimit {
			b.state = Closed
			b.failures = 0
			b.probes = 0
			b.probeFail = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose cooldown
// has elapsed reports [HalfOpen]; the transition itself happens on the next
// [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}
