package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Reason says which constraint denied a send.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonCooldown Reason = "cooldown"
	ReasonWindow   Reason = "window"
)

// Policy combines a fixed cooldown between sends with a cap per rolling window.
// The two constraints are independent; both must pass.
type Policy struct {
	Cooldown     time.Duration
	Window       time.Duration
	MaxPerWindow int
}

// State is the persisted counter for one key. It lives on the binding or
// invitation row so a check and a record can share one atomic update.
type State struct {
	Count  int
	LastAt *time.Time
}

// Decision is the result of Check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     Reason
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds; denied decisions never report 0.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	s := int(math.Ceil(d.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

func (p Policy) inWindow(s State, now time.Time) bool {
	return s.LastAt != nil && now.Sub(*s.LastAt) < p.Window
}

// Check evaluates whether a send at now is allowed.
func (p Policy) Check(s State, now time.Time) Decision {
	if s.LastAt == nil {
		return Decision{Allowed: true}
	}
	elapsed := now.Sub(*s.LastAt)
	if p.Cooldown > 0 && elapsed < p.Cooldown {
		return Decision{RetryAfter: p.Cooldown - elapsed, Reason: ReasonCooldown}
	}
	if p.MaxPerWindow > 0 && p.inWindow(s, now) && s.Count >= p.MaxPerWindow {
		return Decision{RetryAfter: p.Window - elapsed, Reason: ReasonWindow}
	}
	return Decision{Allowed: true}
}

// Record stamps a send at now. Outside the window the counter restarts at 1,
// because the current send counts.
func (p Policy) Record(s State, now time.Time) State {
	at := now
	if p.inWindow(s, now) {
		return State{Count: s.Count + 1, LastAt: &at}
	}
	return State{Count: 1, LastAt: &at}
}

// NextAllowed is the cooldown remaining after a send recorded at now.
func (p Policy) NextAllowed(s State, now time.Time) time.Duration {
	d := p.Check(s, now)
	if d.Allowed {
		return 0
	}
	return d.RetryAfter
}

// Limiter is a keyed, in-process limiter for keys that have no persistent row,
// e.g. client addresses hitting registration.
type Limiter struct {
	policy Policy
	now    func() time.Time

	mu    sync.Mutex
	state map[string]State
}

func NewLimiter(p Policy) *Limiter {
	return &Limiter{policy: p, now: time.Now, state: make(map[string]State)}
}

// WithClock replaces the limiter's time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow checks and records in one step.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	d := l.policy.Check(l.state[key], now)
	if d.Allowed {
		l.state[key] = l.policy.Record(l.state[key], now)
	}
	return d
}

// Prune drops keys whose window has passed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for k, s := range l.state {
		if !l.policy.inWindow(s, now) && (s.LastAt == nil || now.Sub(*s.LastAt) >= l.policy.Cooldown) {
			delete(l.state, k)
			n++
		}
	}
	return n
}
