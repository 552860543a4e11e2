package syncer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engram-ai/engram-go/pkg/syncer"
)

func TestLimiterFirstRequestIsImmediate(t *testing.T) {
	l := syncer.NewLimiter(time.Second)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterSpacesRequests(t *testing.T) {
	l := syncer.NewLimiter(50 * time.Millisecond)

	require.NoError(t, l.Wait(context.Background()))
	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestLimiterBacksOffOnLowQuota(t *testing.T) {
	l := syncer.NewLimiter(time.Millisecond)

	require.NoError(t, l.Wait(context.Background()))
	l.Observe(&syncer.PageResult{QuotaRemaining: 3, ResetAfter: 60 * time.Millisecond})

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The backoff applies once; the next wait is back on the fixed interval.
	start = time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestLimiterIgnoresHealthyQuota(t *testing.T) {
	l := syncer.NewLimiter(time.Millisecond)

	require.NoError(t, l.Wait(context.Background()))
	l.Observe(&syncer.PageResult{QuotaRemaining: 5000})

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestLimiterWaitHonorsCancellation(t *testing.T) {
	l := syncer.NewLimiter(time.Minute)

	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
