package tui

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/pairlink/internal/event"
)

// Sink is a notify.Sink that forwards notifications into a running
// program. Messages sent before Attach are queued and delivered in order
// once a program is attached.
type Sink struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []tea.Msg
}

// NewSink creates an unattached Sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach starts delivering messages through send, usually
// (*tea.Program).Send, after flushing anything queued.
func (s *Sink) Attach(send func(tea.Msg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.pending {
		send(msg)
	}
	s.pending = nil
	s.send = send
}

func (s *Sink) dispatch(msg tea.Msg) {
	s.mu.Lock()
	if s.send == nil {
		s.pending = append(s.pending, msg)
		s.mu.Unlock()
		return
	}
	send := s.send
	s.mu.Unlock()
	send(msg)
}

func (s *Sink) AdvanceToReady()     { s.dispatch(ReadyMsg{}) }
func (s *Sink) PromptForRepairing() { s.dispatch(RepairMsg{}) }

func (s *Sink) ShowFatalError(title, message string) {
	s.dispatch(FatalMsg{Title: title, Message: message})
}

func (s *Sink) ShowError(title, message string) {
	s.dispatch(ErrorMsg{Title: title, Message: message})
}

// Observe turns lifecycle events on bus into status line updates. The
// returned function unsubscribes.
func (s *Sink) Observe(bus *event.Bus) func() {
	ids := []string{
		bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
			sc, ok := e.(event.StateChangedEvent)
			if !ok {
				return
			}
			state := sc.To
			if sc.Reason == "timeout" {
				state = "timeout"
			}
			text := sc.To
			if sc.Reason != "" {
				text = fmt.Sprintf("%s (%s)", sc.To, sc.Reason)
			}
			s.dispatch(StatusMsg{State: state, Text: text})
		}),
		bus.Subscribe(event.TypeAttemptStarted, func(e event.Event) {
			if as, ok := e.(event.AttemptStartedEvent); ok {
				s.dispatch(StatusMsg{State: "attempting", Text: fmt.Sprintf("heartbeat attempt %d", as.Number)})
			}
		}),
		bus.Subscribe(event.TypeRetryScheduled, func(e event.Event) {
			if rs, ok := e.(event.RetryScheduledEvent); ok {
				s.dispatch(StatusMsg{State: "failed", Text: fmt.Sprintf("retrying in %s", rs.Delay)})
			}
		}),
	}
	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}
}
