package syncer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/engram-ai/engram-go/pkg/syncer"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := syncer.NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	assert.True(t, b.Allow())
	assert.False(t, b.Open())

	b.Failure()
	assert.True(t, b.Open())
	assert.False(t, b.Allow())
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	b := syncer.NewBreaker(3, time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	// Non-consecutive failures never open the breaker.
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := syncer.NewBreaker(1, 10*time.Millisecond)

	b.Failure()
	assert.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)

	// One probe after the cooldown; concurrent requests hold.
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	b.Success()
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := syncer.NewBreaker(1, 10*time.Millisecond)

	b.Failure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow())

	b.Failure()
	assert.True(t, b.Open())
	assert.False(t, b.Allow())
}
