// Package backoff tracks consecutive collection failures per module and
// gates retries with capped exponential backoff. A permanently absent device
// is polled at the ceiling rate forever; only external configuration can
// disable a module, since hardware may return at any time.
package backoff

import (
	"sync"
	"time"

	"github.com/boardscout/boardscout/pkg/metric"
)

// Defaults applied by NewPolicy when given zero values.
const (
	DefaultThreshold = 3
	DefaultCeiling   = 10 * time.Minute

	// maxIntervalMultiple caps backoff relative to the module's own
	// polling period.
	maxIntervalMultiple = 10
)

// State is the observable per-module failure state.
type State struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	NextAllowedAttempt  time.Time `json:"next_allowed_attempt,omitzero"`
}

// Policy owns all per-module failure state. Safe for concurrent use.
type Policy struct {
	mu        sync.Mutex
	threshold int
	ceiling   time.Duration
	states    map[string]*State
	now       func() time.Time
}

// NewPolicy creates a failure policy. Zero threshold or ceiling select the
// defaults.
func NewPolicy(threshold int, ceiling time.Duration) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	return &Policy{
		threshold: threshold,
		ceiling:   ceiling,
		states:    make(map[string]*State),
		now:       time.Now,
	}
}

// SetClock replaces the time source. For tests.
func (p *Policy) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Record updates the module's failure state from a collection result. A
// single success resets the counter and clears any backoff immediately. Once
// consecutive failures reach the threshold, the next attempt is pushed out
// by interval x 2^(failures-threshold), capped at both 10x the module's
// interval and the policy ceiling.
func (p *Policy) Record(moduleID string, status metric.Status, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.states[moduleID]
	if st == nil {
		st = &State{}
		p.states[moduleID] = st
	}

	if !status.Failed() {
		st.ConsecutiveFailures = 0
		st.NextAllowedAttempt = time.Time{}
		return
	}

	st.ConsecutiveFailures++
	if st.ConsecutiveFailures < p.threshold {
		return
	}

	delay := interval << uint(st.ConsecutiveFailures-p.threshold)
	if max := interval * maxIntervalMultiple; delay > max || delay <= 0 {
		delay = max
	}
	if delay > p.ceiling {
		delay = p.ceiling
	}
	st.NextAllowedAttempt = p.now().Add(delay)
}

// Allow reports whether the module may attempt collection now. A gated tick
// is a skip, not a failure; it does not advance the backoff.
func (p *Policy) Allow(moduleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.states[moduleID]
	if st == nil || st.NextAllowedAttempt.IsZero() {
		return true
	}
	return !p.now().Before(st.NextAllowedAttempt)
}

// Failures returns the module's consecutive failure count.
func (p *Policy) Failures(moduleID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st := p.states[moduleID]; st != nil {
		return st.ConsecutiveFailures
	}
	return 0
}

// Snapshot returns a copy of all per-module failure states, for the
// operational API.
func (p *Policy) Snapshot() map[string]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]State, len(p.states))
	for id, st := range p.states {
		out[id] = *st
	}
	return out
}

// Reset clears the module's failure state, used when a module is re-enabled
// after a configuration change.
func (p *Policy) Reset(moduleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, moduleID)
}
