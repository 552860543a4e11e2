package syncer

import (
	"context"
	"time"
)

// Limiter paces upstream requests.
//
// When the upstream reports a remaining-quota signal the limiter backs off
// proactively before the quota runs out; otherwise it applies a fixed
// inter-request delay.
type Limiter struct {
	// Interval is the fixed inter-request delay when the upstream reports no
	// quota. Zero selects one second.
	Interval time.Duration

	// LowQuota is the remaining-quota level at which the limiter starts
	// backing off. Zero selects 10.
	LowQuota int

	lastRequest time.Time
	backoff     time.Duration
}

// NewLimiter creates a limiter with the given fixed interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{Interval: interval}
}

// Wait blocks until the next request is allowed or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if l.backoff > interval {
		interval = l.backoff
	}

	if !l.lastRequest.IsZero() {
		if remaining := interval - time.Since(l.lastRequest); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.lastRequest = time.Now()
	l.backoff = 0
	return nil
}

// Observe feeds the upstream's paging signals back into the limiter.
//
// A low remaining quota schedules a proactive backoff for the next Wait,
// sized to the upstream's reset window when it reports one.
func (l *Limiter) Observe(page *PageResult) {
	if page == nil || page.QuotaRemaining < 0 {
		return
	}

	lowQuota := l.LowQuota
	if lowQuota <= 0 {
		lowQuota = 10
	}
	if page.QuotaRemaining >= lowQuota {
		return
	}

	if page.ResetAfter > 0 {
		l.backoff = page.ResetAfter
		return
	}
	l.backoff = 30 * time.Second
}
