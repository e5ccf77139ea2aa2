// Package breaker implements a per-endpoint circuit breaker: closed (pass),
// open (reject immediately), half-open (one probe allowed). Adapted from the
// teacher pack's circuitbreaker.CircuitBreaker (Generativebots-ocx-backend-go-svc),
// narrowed to the fixed policy the coordinator needs — N consecutive
// failures trips the breaker, a single cooldown governs the open→half-open
// transition — and reshaped as a generic Call so callers get their result
// type back without an interface{} cast.
package breaker

import (
	"sync"
	"time"

	"github.com/local/supportbot/internal/errs"
)

// State is one of closed, open, half-open.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls a single breaker's trip policy.
type Config struct {
	// FailureThreshold is the number of consecutive failures, in the closed
	// state, that trips the breaker to open. Defaults to 5.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a single
	// half-open probe. Defaults to 60s.
	Cooldown time.Duration
	// OnStateChange is called (if non-nil) whenever the state changes, for
	// observability.
	OnStateChange func(name string, from, to State)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	return c
}

// Breaker is a single named circuit breaker.
type Breaker struct {
	name string
	cfg  Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    bool
}

// New creates a breaker for a single endpoint name.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), state: Closed}
}

// State returns the current state, resolving an expired cooldown into
// half-open as a side effect (matching spec: "after 60s a single probe is
// allowed").
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

func (b *Breaker) currentStateLocked() State {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.Cooldown {
		b.setStateLocked(HalfOpen)
	}
	return b.state
}

func (b *Breaker) setStateLocked(s State) {
	if b.state == s {
		return
	}
	prev := b.state
	b.state = s
	if s == Open {
		b.openedAt = time.Now()
	}
	if s == Closed {
		b.consecutiveFailures = 0
	}
	if s != HalfOpen {
		b.halfOpenInFlight = false
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, prev, s)
	}
}

// allow reports whether a call may proceed, reserving the single half-open
// probe slot if applicable.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case Open:
		return errs.NewBreakerOpen(b.name)
	case HalfOpen:
		if b.halfOpenInFlight {
			return errs.NewBreakerOpen(b.name)
		}
		b.halfOpenInFlight = true
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.setStateLocked(Closed)
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.setStateLocked(Open)
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.setStateLocked(Open)
		}
	}
}

// Call runs fn if the breaker allows it, recording the outcome. Rejection
// (open, or a half-open probe already in flight) is surfaced as
// *errs.BreakerOpen, which callers treat as transient.
func Call[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	result, err := fn()
	if err != nil {
		b.recordFailure()
		return zero, err
	}
	b.recordSuccess()
	return result, nil
}

// Manager owns one Breaker per named endpoint, creating them lazily.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewManager creates a manager; every breaker it creates uses cfg (the
// empty Config yields the spec defaults: N=5, T=60s).
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns (creating if necessary) the breaker for name.
func (m *Manager) Get(name string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(name, m.cfg)
	m.breakers[name] = b
	return b
}
