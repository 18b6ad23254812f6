// Package heartbeattest provides a scripted heartbeat.Service for tests.
package heartbeattest

import (
	"context"
	"sync"

	"github.com/Iron-Ham/pairlink/internal/heartbeat"
	"github.com/Iron-Ham/pairlink/internal/pairing"
)

// Step is the scripted behavior of one Heartbeat call.
type Step struct {
	Result heartbeat.Result
	// Gate, if non-nil, holds the call until it is closed or the
	// attempt's context is done.
	Gate <-chan struct{}
}

// Return is a Step that answers immediately with code and an optional
// message.
func Return(code int32, message ...string) Step {
	if len(message) > 0 {
		return Step{Result: heartbeat.Failure(code, message[0])}
	}
	return Step{Result: heartbeat.Result{Code: code}}
}

// Gated is a Step that answers with code once gate is closed.
func Gated(gate <-chan struct{}, code int32, message ...string) Step {
	s := Return(code, message...)
	s.Gate = gate
	return s
}

// Service answers Heartbeat calls from a script, one Step per call. Calls
// beyond the script block until their context is done.
type Service struct {
	mu    sync.Mutex
	steps []Step
	calls int
	creds []pairing.Credential

	started chan int
}

// New creates a Service that plays steps in order.
func New(steps ...Step) *Service {
	return &Service{
		steps:   steps,
		started: make(chan int, 64),
	}
}

// Heartbeat implements heartbeat.Service.
func (s *Service) Heartbeat(ctx context.Context, cred pairing.Credential) heartbeat.Result {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.creds = append(s.creds, cred)
	var step *Step
	if n < len(s.steps) {
		step = &s.steps[n]
	}
	s.mu.Unlock()

	select {
	case s.started <- n + 1:
	default:
	}

	if step == nil {
		<-ctx.Done()
		return heartbeat.Failure(heartbeat.CodeCanceled, ctx.Err().Error())
	}
	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
			return heartbeat.Failure(heartbeat.CodeCanceled, ctx.Err().Error())
		}
	}
	return step.Result
}

// Calls returns how many times Heartbeat was called.
func (s *Service) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Credentials returns the credentials passed to each call, in order.
func (s *Service) Credentials() []pairing.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pairing.Credential, len(s.creds))
	copy(out, s.creds)
	return out
}

// Started receives the 1-based number of each call as it begins.
func (s *Service) Started() <-chan int {
	return s.started
}
