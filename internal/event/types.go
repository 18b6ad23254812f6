package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "connection.state_changed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeStateChanged        = "connection.state_changed"
	TypeConnectionTimeout   = "connection.timeout"
	TypeAttemptStarted      = "heartbeat.attempt_started"
	TypeAttemptResult       = "heartbeat.attempt_result"
	TypeRetryScheduled      = "heartbeat.retry_scheduled"
	TypeProxyStatus         = "proxy.status"
	TypePairingImported     = "pairing.imported"
	TypePairingImportFailed = "pairing.import_failed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Connection Events
// -----------------------------------------------------------------------------

// StateChangedEvent is emitted on every connection state transition.
type StateChangedEvent struct {
	baseEvent
	From   string // previous state name
	To     string // new state name
	Reason string // failure reason when To is "failed", otherwise empty
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(from, to, reason string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent: newBaseEvent(TypeStateChanged),
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// ConnectionTimeoutEvent is emitted when the establishment watchdog fires
// before the connection became ready.
type ConnectionTimeoutEvent struct {
	baseEvent
	Timeout  time.Duration
	Attempts int // attempts started before the watchdog fired
}

// NewConnectionTimeoutEvent creates a ConnectionTimeoutEvent.
func NewConnectionTimeoutEvent(timeout time.Duration, attempts int) ConnectionTimeoutEvent {
	return ConnectionTimeoutEvent{
		baseEvent: newBaseEvent(TypeConnectionTimeout),
		Timeout:   timeout,
		Attempts:  attempts,
	}
}

// -----------------------------------------------------------------------------
// Heartbeat Events
// -----------------------------------------------------------------------------

// AttemptStartedEvent is emitted when a heartbeat attempt is launched.
type AttemptStartedEvent struct {
	baseEvent
	AttemptID string
	Number    int // 1-based attempt number within this run
}

// NewAttemptStartedEvent creates an AttemptStartedEvent.
func NewAttemptStartedEvent(attemptID string, number int) AttemptStartedEvent {
	return AttemptStartedEvent{
		baseEvent: newBaseEvent(TypeAttemptStarted),
		AttemptID: attemptID,
		Number:    number,
	}
}

// AttemptResultEvent is emitted when a heartbeat attempt reports its result.
type AttemptResultEvent struct {
	baseEvent
	AttemptID string
	Code      int32
	Message   string
	Outcome   string // "success", "invalid_host_id" or "failure"
	Stale     bool   // result came from a superseded attempt
}

// NewAttemptResultEvent creates an AttemptResultEvent.
func NewAttemptResultEvent(attemptID string, code int32, message, outcome string, stale bool) AttemptResultEvent {
	return AttemptResultEvent{
		baseEvent: newBaseEvent(TypeAttemptResult),
		AttemptID: attemptID,
		Code:      code,
		Message:   message,
		Outcome:   outcome,
		Stale:     stale,
	}
}

// RetryScheduledEvent is emitted when a failed attempt is followed by a
// scheduled retry.
type RetryScheduledEvent struct {
	baseEvent
	Attempt int // number of the attempt that will run
	Delay   time.Duration
}

// NewRetryScheduledEvent creates a RetryScheduledEvent.
func NewRetryScheduledEvent(attempt int, delay time.Duration) RetryScheduledEvent {
	return RetryScheduledEvent{
		baseEvent: newBaseEvent(TypeRetryScheduled),
		Attempt:   attempt,
		Delay:     delay,
	}
}

// -----------------------------------------------------------------------------
// Proxy Events
// -----------------------------------------------------------------------------

// ProxyStatusEvent is emitted once when the proxy launch completes.
type ProxyStatusEvent struct {
	baseEvent
	Addr    string
	Started bool
	Err     error
}

// NewProxyStatusEvent creates a ProxyStatusEvent.
func NewProxyStatusEvent(addr string, started bool, err error) ProxyStatusEvent {
	return ProxyStatusEvent{
		baseEvent: newBaseEvent(TypeProxyStatus),
		Addr:      addr,
		Started:   started,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Pairing Events
// -----------------------------------------------------------------------------

// PairingImportedEvent is emitted after a credential replaced the active one.
type PairingImportedEvent struct {
	baseEvent
	Source      string
	Destination string
	HostID      string // empty if the credential could not be inspected
}

// NewPairingImportedEvent creates a PairingImportedEvent.
func NewPairingImportedEvent(source, destination, hostID string) PairingImportedEvent {
	return PairingImportedEvent{
		baseEvent:   newBaseEvent(TypePairingImported),
		Source:      source,
		Destination: destination,
		HostID:      hostID,
	}
}

// PairingImportFailedEvent is emitted when an import was rejected or failed.
type PairingImportFailedEvent struct {
	baseEvent
	Source string
	Err    error
}

// NewPairingImportFailedEvent creates a PairingImportFailedEvent.
func NewPairingImportFailedEvent(source string, err error) PairingImportFailedEvent {
	return PairingImportFailedEvent{
		baseEvent: newBaseEvent(TypePairingImportFailed),
		Source:    source,
		Err:       err,
	}
}
