// Package resilience protects jurisdiction lookup sites and registry
// downloads: a circuit breaker per jurisdiction, transient failure
// classification, and retry with backoff.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the position of a circuit breaker.
type State int

const (
	// StateClosed lets fetches through.
	StateClosed State = iota
	// StateOpen rejects fetches until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow while a breaker is open.
var ErrOpen = eris.New("circuit open")

// BreakerConfig controls when a jurisdiction is taken out of rotation.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed fetches that
	// opens the circuit. Default: 5.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects fetches before a trial call
	// is allowed. Default: 5m.
	Cooldown time.Duration
	// OnStateChange is called with the breaker key on every transition.
	OnStateChange func(key string, from, to State)
	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 5 * time.Minute}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Breaker is a consecutive-failure circuit breaker. Callers ask Allow
// before a fetch and report the result with Record.
type Breaker struct {
	key string
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker identified by key.
func NewBreaker(key string, cfg BreakerConfig) *Breaker {
	return &Breaker{key: key, cfg: cfg.withDefaults()}
}

// Allow returns ErrOpen when the fetch must be skipped. Once the cooldown
// has elapsed exactly one caller is let through as a trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record reports the outcome of an allowed fetch.
func (b *Breaker) Record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		b.failures = 0
		b.probing = false
		if b.state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case StateHalfOpen:
		b.probing = false
		b.open()
	case StateClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	}
}

func (b *Breaker) open() {
	b.openedAt = b.cfg.Now()
	b.transition(StateOpen)
}

// State reports the current position. An open breaker whose cooldown has
// elapsed reads as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil && from != to {
		b.cfg.OnStateChange(b.key, from, to)
	}
}

// Breakers keeps one Breaker per key (jurisdiction code), created lazily.
type Breakers struct {
	cfg BreakerConfig

	mu    sync.RWMutex
	byKey map[string]*Breaker
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg.withDefaults(), byKey: make(map[string]*Breaker)}
}

// For returns the breaker for key.
func (s *Breakers) For(key string) *Breaker {
	s.mu.RLock()
	b, ok := s.byKey[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.byKey[key]; ok {
		return b
	}
	b = NewBreaker(key, s.cfg)
	s.byKey[key] = b
	return b
}

// States snapshots every known breaker.
func (s *Breakers) States() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.byKey))
	for k, b := range s.byKey {
		out[k] = b.State()
	}
	return out
}
