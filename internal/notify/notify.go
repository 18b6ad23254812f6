// Package notify defines how the connection lifecycle talks to whatever is
// showing it to the user.
//
// The orchestrator only ever calls the three [Sink] verbs, plus
// [ErrorNotifier.ShowError] when the sink supports dismissable errors.
// Implementations must be safe to call from any goroutine and must not
// block for long.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/Iron-Ham/pairlink/internal/logging"
)

// Fixed user-facing text.
const (
	FatalTitle   = "HeartBeat Error"
	FatalMessage = "Unable to establish connection.\nPlease check your WiFi and VPN connection."

	ConnectionErrorTitle   = "Connection Error"
	ConnectionErrorMessage = "No WiFi or VPN!\nYou do not appear to be connected to WiFi and/or the WireGuard VPN!"

	// RestartHint is shown under fatal errors, which cannot be dismissed.
	RestartHint = "Please connect to WireGuard VPN and restart the app."
)

// Sink receives lifecycle notifications.
type Sink interface {
	// AdvanceToReady is called exactly once, when the connection is usable.
	AdvanceToReady()
	// PromptForRepairing asks the user for a new pairing file.
	PromptForRepairing()
	// ShowFatalError shows a non-dismissable error.
	ShowFatalError(title, message string)
}

// ErrorNotifier is implemented by sinks that can show dismissable errors.
type ErrorNotifier interface {
	ShowError(title, message string)
}

// ShowError calls ShowError on s if it implements ErrorNotifier and
// reports whether it did.
func ShowError(s Sink, title, message string) bool {
	if en, ok := s.(ErrorNotifier); ok {
		en.ShowError(title, message)
		return true
	}
	return false
}

// Multi fans notifications out to several sinks in order.
type Multi []Sink

// Fanout returns a Sink that forwards to every non-nil sink.
func Fanout(sinks ...Sink) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m Multi) AdvanceToReady() {
	for _, s := range m {
		s.AdvanceToReady()
	}
}

func (m Multi) PromptForRepairing() {
	for _, s := range m {
		s.PromptForRepairing()
	}
}

func (m Multi) ShowFatalError(title, message string) {
	for _, s := range m {
		s.ShowFatalError(title, message)
	}
}

// ShowError forwards to the sinks that support dismissable errors.
func (m Multi) ShowError(title, message string) {
	for _, s := range m {
		ShowError(s, title, message)
	}
}

// LogSink writes notifications to a logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LogSink{logger: logger.WithComponent("notify")}
}

func (s *LogSink) AdvanceToReady() {
	s.logger.Info("notify: ready")
}

func (s *LogSink) PromptForRepairing() {
	s.logger.Warn("notify: re-pairing required")
}

func (s *LogSink) ShowFatalError(title, message string) {
	s.logger.Error("notify: fatal error", "title", title, "message", message)
}

func (s *LogSink) ShowError(title, message string) {
	s.logger.Warn("notify: error", "title", title, "message", message)
}

// ConsoleSink prints notifications as plain text, for runs without the
// terminal UI.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}

func (s *ConsoleSink) AdvanceToReady() {
	s.printf("Connected. Ready.\n")
}

func (s *ConsoleSink) PromptForRepairing() {
	s.printf("Pairing file rejected by the host.\nImport a new one with: pairlink import <file>\n")
}

func (s *ConsoleSink) ShowFatalError(title, message string) {
	s.printf("%s\n%s\n%s\n", title, message, RestartHint)
}

func (s *ConsoleSink) ShowError(title, message string) {
	s.printf("%s: %s\n", title, message)
}
