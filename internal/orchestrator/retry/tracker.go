package retry

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Iron-Ham/pairlink/internal/clock"
)

// State is a snapshot of a Tracker.
type State struct {
	Attempts  int           `json:"attempts"`
	Failures  int           `json:"failures"`
	LastCode  int32         `json:"last_code,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Succeeded bool          `json:"succeeded,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Exhausted bool          `json:"exhausted,omitempty"`
}

// Tracker applies a Policy to one sequence of attempts.
// It is thread-safe and can be used concurrently.
type Tracker struct {
	mu     sync.RWMutex
	policy Policy
	clock  clock.Clock
	rand   func() float64

	attempts  int
	failures  int // consecutive failures since the last reset
	started   time.Time
	lastCode  int32
	lastError string
	succeeded bool
}

// NewTracker creates a Tracker. A nil clock uses the real clock.
func NewTracker(policy Policy, clk clock.Clock) *Tracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &Tracker{
		policy: policy,
		clock:  clk,
		rand:   rand.Float64,
	}
}

// SetRand replaces the jitter source. f must return values in [0, 1).
func (t *Tracker) SetRand(f func() float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rand = f
}

// Policy returns the tracker's policy.
func (t *Tracker) Policy() Policy {
	return t.policy
}

// RecordStart records that an attempt is starting and returns its 1-based
// number.
func (t *Tracker) RecordStart() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.attempts == 0 {
		t.started = t.clock.Now()
	}
	t.attempts++
	return t.attempts
}

// RecordFailure records a failed attempt.
func (t *Tracker) RecordFailure(code int32, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failures++
	t.lastCode = code
	t.lastError = message
}

// RecordSuccess marks the sequence as succeeded. No more retries are
// allowed afterwards.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.succeeded = true
}

// ShouldRetry reports whether another attempt is allowed.
func (t *Tracker) ShouldRetry() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.succeeded && !t.exhaustedLocked()
}

func (t *Tracker) exhaustedLocked() bool {
	if t.policy.MaxAttempts > 0 && t.attempts >= t.policy.MaxAttempts {
		return true
	}
	if t.policy.MaxElapsed > 0 && t.attempts > 0 && t.clock.Now().Sub(t.started) >= t.policy.MaxElapsed {
		return true
	}
	return false
}

// NextDelay returns the jittered delay to wait before the next attempt.
func (t *Tracker) NextDelay() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.policy.Jittered(t.policy.Backoff(t.failures), t.rand())
}

// Reset starts a new sequence, keeping the policy. Used when the
// credential changes and earlier failures no longer apply.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts = 0
	t.failures = 0
	t.started = time.Time{}
	t.lastCode = 0
	t.lastError = ""
	t.succeeded = false
}

// State returns a snapshot of the tracker.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var elapsed time.Duration
	if t.attempts > 0 {
		elapsed = t.clock.Now().Sub(t.started)
	}
	return State{
		Attempts:  t.attempts,
		Failures:  t.failures,
		LastCode:  t.lastCode,
		LastError: t.lastError,
		Succeeded: t.succeeded,
		Elapsed:   elapsed,
		Exhausted: !t.succeeded && t.exhaustedLocked(),
	}
}
