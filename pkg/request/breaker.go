package request

import (
	"sync"
	"time"
)

// Breaker manages a circuit breaker per provider. After `threshold`
// consecutive failures the circuit opens for `cooldown`; once the
// cooldown elapses a single probe request is let through (half-open)
// and its outcome closes or re-opens the circuit.
type Breaker struct {
	mu        sync.Mutex
	providers map[string]*breakerState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

type breakerState struct {
	failureCount int
	openUntil    time.Time
	probing      bool
}

// NewBreaker creates a new breaker manager.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		providers: make(map[string]*breakerState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether the provider may issue a request right now.
// When the cooldown has elapsed it admits exactly one probe; further
// callers stay blocked until the probe reports its outcome.
func (b *Breaker) Allow(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.providers[provider]
	if !exists {
		return true
	}
	if state.openUntil.IsZero() {
		return true
	}
	if b.now().Before(state.openUntil) {
		return false
	}
	if state.probing {
		return false
	}
	state.probing = true
	return true
}

// RecordFailure counts a failed request. Returns true when this
// failure opened (or re-opened) the circuit.
func (b *Breaker) RecordFailure(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.providers[provider]
	if !exists {
		state = &breakerState{}
		b.providers[provider] = state
	}

	state.failureCount++
	state.probing = false
	if state.failureCount >= b.threshold {
		wasOpen := !state.openUntil.IsZero() && b.now().Before(state.openUntil)
		state.openUntil = b.now().Add(b.cooldown)
		return !wasOpen
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, exists := b.providers[provider]
	if !exists {
		return
	}
	state.failureCount = 0
	state.openUntil = time.Time{}
	state.probing = false
}

// GetState returns the current breaker state for a provider (for diagnostics).
func (b *Breaker) GetState(provider string) (failureCount int, openUntil time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if state, exists := b.providers[provider]; exists {
		return state.failureCount, state.openUntil
	}
	return 0, time.Time{}
}
