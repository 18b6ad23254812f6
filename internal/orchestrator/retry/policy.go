// Package retry decides when a failed heartbeat is retried and how long to
// wait first.
//
// A [Policy] describes bounded exponential backoff with jitter. A [Tracker]
// applies a policy to one connection run: it counts attempts, keeps the
// last failure for diagnostics and answers whether another attempt is
// allowed.
package retry

import (
	"math"
	"time"
)

// Policy configures exponential backoff between attempts.
type Policy struct {
	// InitialBackoff is the delay after the first failure. Zero retries
	// immediately.
	InitialBackoff time.Duration
	// MaxBackoff caps each delay. Zero means no cap.
	MaxBackoff time.Duration
	// Multiplier grows the delay after each failure. Values below 1 are
	// treated as 1.
	Multiplier float64
	// Jitter randomizes each delay by up to this fraction in either
	// direction (0-1).
	Jitter float64
	// MaxAttempts caps the number of attempts. Zero means unlimited.
	MaxAttempts int
	// MaxElapsed caps the time since the first attempt. Zero means
	// unlimited.
	MaxElapsed time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2,
		Jitter:         0.2,
	}
}

// Backoff returns the un-jittered delay after the given number of
// consecutive failures (1 for the first failure).
func (p Policy) Backoff(failures int) time.Duration {
	if failures < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialBackoff) * math.Pow(mult, float64(failures-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Jittered applies the policy's jitter to d using r, a value in [0, 1).
// The result never exceeds MaxBackoff when a cap is set.
func (p Policy) Jittered(d time.Duration, r float64) time.Duration {
	j := p.Jitter
	if j <= 0 || d <= 0 {
		return d
	}
	if j > 1 {
		j = 1
	}

	out := time.Duration(float64(d) * (1 - j + 2*j*r))
	if p.MaxBackoff > 0 && out > p.MaxBackoff {
		out = p.MaxBackoff
	}
	if out < 0 {
		out = 0
	}
	return out
}
