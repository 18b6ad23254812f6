package orchestrator

import (
	"time"

	"github.com/Iron-Ham/pairlink/internal/heartbeat"
	"github.com/Iron-Ham/pairlink/internal/orchestrator/retry"
	"github.com/Iron-Ham/pairlink/internal/proxy"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAwaitingPairing
	StateAttempting
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPairing:
		return "awaiting_pairing"
	case StateAttempting:
		return "attempting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateReady
}

// FailureReason qualifies StateFailed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	// ReasonConnectivity is a generic heartbeat failure; a retry is pending.
	ReasonConnectivity
	// ReasonTimeout means the establishment watchdog fired before Ready.
	ReasonTimeout
	// ReasonRetriesExhausted means the retry policy allows no more attempts.
	ReasonRetriesExhausted
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonConnectivity:
		return "connectivity"
	case ReasonTimeout:
		return "timeout"
	case ReasonRetriesExhausted:
		return "retries_exhausted"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of an Orchestrator.
type Snapshot struct {
	State  State
	Reason FailureReason

	// Attempts counts heartbeat attempts since start or the last import.
	Attempts int
	// CurrentAttempt is the ID of the attempt whose result drives the next
	// transition, or empty when none is in flight.
	CurrentAttempt string

	LastResult heartbeat.Result
	HasResult  bool

	TimedOut   bool // the establishment watchdog fired
	FatalShown bool // ShowFatalError has been called

	Retry retry.State

	// Proxy is nil until the launcher reports.
	Proxy *proxy.Status

	EnteredAt time.Time // when State was entered
}
