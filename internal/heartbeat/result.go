// Package heartbeat runs single heartbeat attempts against the paired host.
//
// A [Service] performs one blocking heartbeat. [Start] runs it on its own
// goroutine and reports the [Result] exactly once through a callback, which
// is how the orchestrator learns about completion without polling. Attempts
// never retry on their own; retry policy belongs to the caller.
package heartbeat

import (
	"fmt"

	perrors "github.com/Iron-Ham/pairlink/internal/errors"
)

// Result codes with meaning to the connection lifecycle. Any other
// non-zero code is a generic failure.
const (
	CodeSuccess       int32 = 0
	CodeTimeout       int32 = -1
	CodeCanceled      int32 = -2
	CodeInternal      int32 = -3
	CodeInvalidHostID int32 = -9
	CodeNoRoute       int32 = 7
)

// Result is the outcome of one heartbeat attempt.
type Result struct {
	Code       int32
	Message    string
	HasMessage bool
}

// Success returns a successful Result.
func Success() Result {
	return Result{Code: CodeSuccess}
}

// Failure returns a Result with code and message.
func Failure(code int32, message string) Result {
	return Result{Code: code, Message: message, HasMessage: true}
}

// FromCallback builds a Result from a callback-style code and optional
// message.
func FromCallback(code int32, message *string) Result {
	if message == nil {
		return Result{Code: code}
	}
	return Result{Code: code, Message: *message, HasMessage: true}
}

// Outcome is the lifecycle classification of a result code.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInvalidHostID
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidHostID:
		return "invalid_host_id"
	default:
		return "failure"
	}
}

// Classify maps a result code onto its recovery path.
func Classify(code int32) Outcome {
	switch code {
	case CodeSuccess:
		return OutcomeSuccess
	case CodeInvalidHostID:
		return OutcomeInvalidHostID
	default:
		return OutcomeFailure
	}
}

// Outcome classifies r.
func (r Result) Outcome() Outcome {
	return Classify(r.Code)
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool {
	return r.Code == CodeSuccess
}

// Err converts a failed result into a *errors.HeartbeatError wrapping
// ErrInvalidCredential or ErrConnectivity. Timed out and canceled attempts
// also match ErrTimeout and ErrCanceled. It returns nil on success.
func (r Result) Err() error {
	switch r.Code {
	case CodeSuccess:
		return nil
	case CodeInvalidHostID:
		return perrors.NewHeartbeatError(r.Code, r.Message, perrors.ErrInvalidCredential)
	case CodeTimeout:
		return perrors.NewHeartbeatError(r.Code, r.Message, fmt.Errorf("%w: %w", perrors.ErrConnectivity, perrors.ErrTimeout))
	case CodeCanceled:
		return perrors.NewHeartbeatError(r.Code, r.Message, fmt.Errorf("%w: %w", perrors.ErrConnectivity, perrors.ErrCanceled))
	default:
		return perrors.NewHeartbeatError(r.Code, r.Message, perrors.ErrConnectivity)
	}
}

func (r Result) String() string {
	if r.HasMessage {
		return fmt.Sprintf("code=%d message=%q", r.Code, r.Message)
	}
	return fmt.Sprintf("code=%d", r.Code)
}
