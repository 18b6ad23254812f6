// Package clock abstracts the time operations the connection lifecycle
// depends on so tests can drive watchdogs and retry backoff without sleeping.
//
// Production code uses [Real]; tests use [Fake] and move time with
// [FakeClock.Advance].
package clock

import "time"

// Clock is the subset of the time package used by the orchestrator and
// its retry policy.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously from
	// Advance (fake) once d has elapsed. The returned Timer cancels it.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop prevents the timer from firing. It returns false if the timer has
// already fired or was stopped before.
func (t *Timer) Stop() bool { return t.stop() }
