package infra

import (
	"errors"
	"sync"
	"time"
)

// Breaker is a minimal circuit breaker (Closed → Open → HalfOpen) guarding
// calls to the remote POS backend. When the backend is down the terminal
// fast-fails instead of stacking 15s timeouts on every tap.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time

	failureLimit int
	successLimit int
	openTimeout  time.Duration
}

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBackendUnavailable is returned while the breaker is open.
var ErrBackendUnavailable = errors.New("backend unavailable (circuit open)")

// NewBreaker creates a closed breaker. failureLimit consecutive failures trip
// it open; after openTimeout one probe is let through, and successLimit
// consecutive probe successes close it again.
func NewBreaker(failureLimit, successLimit int, openTimeout time.Duration) *Breaker {
	if failureLimit <= 0 {
		failureLimit = 5
	}
	if successLimit <= 0 {
		successLimit = 2
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &Breaker{
		failureLimit: failureLimit,
		successLimit: successLimit,
		openTimeout:  openTimeout,
	}
}

// State returns the current state, auto-transitioning open → half-open once
// the open timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.lastFailure) >= b.openTimeout {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state
}

// Execute runs fn through the breaker. While open it returns
// ErrBackendUnavailable without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if b.State() == BreakerOpen {
		return ErrBackendUnavailable
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		switch b.state {
		case BreakerClosed:
			if b.failures >= b.failureLimit {
				b.state = BreakerOpen
				b.successes = 0
			}
		case BreakerHalfOpen:
			b.state = BreakerOpen
			b.failures = 0
		}
		return err
	}

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successLimit {
			b.state = BreakerClosed
			b.failures = 0
			b.successes = 0
		}
	}
	return nil
}
