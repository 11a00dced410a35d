package marketdata

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen indicates the backing store is being bypassed after
// repeated failures.
var ErrCircuitOpen = errors.New("marketdata: circuit open")

// Breaker guards the backing store. It opens after a run of consecutive
// failures and half-closes once the cool-down window has elapsed: the next
// call is admitted as a probe and resets the failure count on success.
type Breaker struct {
	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	open        bool

	threshold int
	coolDown  time.Duration
	now       func() time.Time
}

// NewBreaker constructs a circuit breaker.
func NewBreaker(threshold int, coolDown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 4
	}
	if coolDown <= 0 {
		coolDown = time.Minute
	}
	return &Breaker{threshold: threshold, coolDown: coolDown, now: time.Now}
}

// Allow reports whether a call to the backing store may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	return b.now().Sub(b.lastFailure) >= b.coolDown
}

// Success records a successful call, closing the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
}

// Failure records a failed call, opening the breaker at the threshold.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	if b.failures >= b.threshold {
		b.open = true
	}
}

// Open reports whether the breaker is currently refusing fresh calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && b.now().Sub(b.lastFailure) < b.coolDown
}
