package syncer

import "time"

// breakerState is the circuit breaker's position.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker stops a connector from hammering a failing upstream.
//
// After Threshold consecutive item-level failures the breaker opens and Allow
// refuses requests for the Cooldown window. The first Allow after the window
// half-opens the breaker: one probe is let through, and its outcome either
// closes the breaker or re-opens it for another window.
type Breaker struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	// Zero selects 5.
	Threshold int

	// Cooldown is how long the breaker stays open. Zero selects 60 seconds.
	Cooldown time.Duration

	state    breakerState
	failures int
	openedAt time.Time

	// now is swapped in tests.
	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may proceed.
func (b *Breaker) Allow() bool {
	if b.now == nil {
		b.now = time.Now
	}

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		// One probe at a time; further requests wait for its outcome.
		return false
	case breakerOpen:
		cooldown := b.Cooldown
		if cooldown <= 0 {
			cooldown = 60 * time.Second
		}
		if b.now().Sub(b.openedAt) >= cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

// Success records a successful item. It closes a half-open breaker and resets
// the consecutive-failure count.
func (b *Breaker) Success() {
	b.state = breakerClosed
	b.failures = 0
}

// Failure records a failed item. A half-open probe failure re-opens
// immediately; in the closed state the breaker opens once the consecutive
// count reaches the threshold.
func (b *Breaker) Failure() {
	if b.now == nil {
		b.now = time.Now
	}

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.now()
		return
	}

	b.failures++
	threshold := b.Threshold
	if threshold <= 0 {
		threshold = 5
	}
	if b.failures >= threshold {
		b.state = breakerOpen
		b.openedAt = b.now()
	}
}

// Open reports whether the breaker currently refuses requests.
func (b *Breaker) Open() bool {
	return b.state == breakerOpen
}
