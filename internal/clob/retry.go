package clob

import (
	"math/rand"
	"time"
)

// RetryPolicy is a pure description of the bounded retry behavior applied to
// upstream submissions: attempt count, delay schedule, and which statuses are
// worth retrying at all.
type RetryPolicy struct {
	Attempts       int
	Delays         []time.Duration
	Jitter         time.Duration
	AttemptTimeout time.Duration

	// OnRetry, when set, observes each retried attempt (1-based count of
	// completed attempts).
	OnRetry func(attempt int)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:       3,
		Delays:         []time.Duration{300 * time.Millisecond, 900 * time.Millisecond},
		Jitter:         250 * time.Millisecond,
		AttemptTimeout: 12 * time.Second,
	}
}

// Backoff returns the delay before attempt n+1 (zero-based n counts completed
// attempts). Past the schedule the last delay repeats.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if n >= len(p.Delays) {
		n = len(p.Delays) - 1
	}
	d := p.Delays[n]
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Retryable reports whether a status code is a transient upstream condition.
// The CDN edge codes (520/522/523/524) show up when the exchange sits behind
// an unstable edge and the request never reached origin.
func (p RetryPolicy) Retryable(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504, 520, 522, 523, 524:
		return true
	}
	return false
}
