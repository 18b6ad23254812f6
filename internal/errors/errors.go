// Package errors provides centralized error definitions and error handling utilities
// for pairlink. It defines the connection-lifecycle failure taxonomy, semantic
// error types, error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - HeartbeatError: a heartbeat attempt finished with a non-zero result code
//   - ImportError: a pairing credential could not be imported
//   - LaunchError: the local proxy could not be started
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//   - TimeoutError: an operation did not finish in time
//
// # Taxonomy
//
// The lifecycle sentinels map one-to-one onto recovery paths:
//   - ErrCredentialMissing: first run, not a failure (routes to ready)
//   - ErrInvalidCredential: recoverable by re-pairing, never auto-retried
//   - ErrConnectivity: retried in the background with backoff
//   - ErrEstablishmentTimeout: fatal, user-visible, late success still honored
//   - ErrImportIO: logged, state machine stays where it was
//
// # Usage
//
//	err := errors.NewHeartbeatError(7, "no route", errors.ErrConnectivity).WithAttemptID(id)
//
//	if errors.Is(err, errors.ErrInvalidCredential) { ... }
//
//	var hbErr *errors.HeartbeatError
//	if errors.As(err, &hbErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pairing-related sentinel errors
var (
	// ErrCredentialMissing indicates that no pairing credential is stored.
	ErrCredentialMissing = New("pairing credential missing")
	// ErrInvalidCredential indicates that the credential does not match the paired host.
	ErrInvalidCredential = New("invalid host id")
	// ErrImportIO indicates that copying or deleting the credential file failed.
	ErrImportIO = New("credential import failed")
	// ErrInvalidCredentialFile indicates that an import source is not a usable credential.
	ErrInvalidCredentialFile = New("not a pairing credential file")
)

// Connection-related sentinel errors
var (
	// ErrConnectivity indicates a generic network or VPN failure reaching the host.
	ErrConnectivity = New("connectivity failure")
	// ErrEstablishmentTimeout indicates that no connection was established in time.
	ErrEstablishmentTimeout = New("unable to establish connection")
	// ErrRetriesExhausted indicates that the retry policy gave up.
	ErrRetriesExhausted = New("retries exhausted")
)

// Proxy-related sentinel errors
var (
	// ErrProxyLaunch indicates that the local proxy failed to start.
	ErrProxyLaunch = New("proxy launch failed")
	// ErrProxyNotLoopback indicates a bind address outside the loopback range.
	ErrProxyNotLoopback = New("proxy bind address is not loopback")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// PairlinkError is the base interface for all pairlink errors.
// It extends the standard error interface with methods for
// error handling and classification.
type PairlinkError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatPrefix builds "kind [k=v, ...]" from the non-empty context parts.
func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// HeartbeatError represents a heartbeat attempt that finished with a non-zero code.
// Retryability follows the cause: ErrInvalidCredential is never retryable,
// everything else is.
//
// Example:
//
//	err := errors.NewHeartbeatError(7, "no route", errors.ErrConnectivity)
//	fmt.Println(err) // "heartbeat error [code=7]: no route: connectivity failure"
type HeartbeatError struct {
	baseError
	Code      int32
	AttemptID string
}

// NewHeartbeatError creates a new HeartbeatError.
func NewHeartbeatError(code int32, message string, cause error) *HeartbeatError {
	invalid := errors.Is(cause, ErrInvalidCredential)
	severity := SeverityWarning
	if invalid {
		severity = SeverityError
	}
	return &HeartbeatError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   severity,
			retryable:  !invalid,
			userFacing: true,
		},
		Code: code,
	}
}

// WithAttemptID adds the attempt ID to the error context.
func (e *HeartbeatError) WithAttemptID(id string) *HeartbeatError {
	e.AttemptID = id
	return e
}

// WithSeverity sets the error severity.
func (e *HeartbeatError) WithSeverity(s Severity) *HeartbeatError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *HeartbeatError) Error() string {
	parts := []string{fmt.Sprintf("code=%d", e.Code)}
	if e.AttemptID != "" {
		parts = append(parts, fmt.Sprintf("attempt=%s", e.AttemptID))
	}
	prefix := formatPrefix("heartbeat error", parts)

	msg := e.message
	if msg == "" {
		msg = "heartbeat failed"
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *HeartbeatError) Is(target error) bool {
	if _, ok := target.(*HeartbeatError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ImportError represents a failed pairing credential import.
//
// Example:
//
//	err := errors.NewImportError("copy failed", ioErr).WithSource(src).WithDestination(dst)
type ImportError struct {
	baseError
	Source      string
	Destination string
}

// NewImportError creates a new ImportError. The cause is wrapped together
// with ErrImportIO unless it already is, or is ErrInvalidCredentialFile.
func NewImportError(message string, cause error) *ImportError {
	if cause != nil && !errors.Is(cause, ErrImportIO) && !errors.Is(cause, ErrInvalidCredentialFile) {
		cause = fmt.Errorf("%w: %w", ErrImportIO, cause)
	} else if cause == nil {
		cause = ErrImportIO
	}
	return &ImportError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithSource adds the import source path to the error context.
func (e *ImportError) WithSource(path string) *ImportError {
	e.Source = path
	return e
}

// WithDestination adds the credential path to the error context.
func (e *ImportError) WithDestination(path string) *ImportError {
	e.Destination = path
	return e
}

// Error returns the formatted error message.
func (e *ImportError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", e.Source))
	}
	if e.Destination != "" {
		parts = append(parts, fmt.Sprintf("dest=%s", e.Destination))
	}
	prefix := formatPrefix("import error", parts)

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ImportError) Is(target error) bool {
	if _, ok := target.(*ImportError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LaunchError represents a failure to start the local proxy.
type LaunchError struct {
	baseError
	Address string
}

// NewLaunchError creates a new LaunchError.
func NewLaunchError(address string, cause error) *LaunchError {
	if cause == nil {
		cause = ErrProxyLaunch
	} else if !errors.Is(cause, ErrProxyLaunch) {
		cause = fmt.Errorf("%w: %w", ErrProxyLaunch, cause)
	}
	return &LaunchError{
		baseError: baseError{
			message:    "failed to start proxy",
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: false,
		},
		Address: address,
	}
}

// Error returns the formatted error message.
func (e *LaunchError) Error() string {
	prefix := "launch error"
	if e.Address != "" {
		prefix = formatPrefix(prefix, []string{fmt.Sprintf("addr=%s", e.Address)})
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *LaunchError) Is(target error) bool {
	if _, ok := target.(*LaunchError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("jitter must be between 0 and 1").WithField("retry.jitter").WithValue(1.5)
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds the name of the invalid field.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	prefix := formatPrefix("validation error", parts)

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("establishing connection", 15*time.Second)
//	fmt.Println(err) // "timeout error: establishing connection (timeout: 15s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing PairlinkError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout or ErrConnectivity
//
// ErrInvalidCredential is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrInvalidCredential) {
		return false
	}

	var pairlinkErr PairlinkError
	if As(err, &pairlinkErr) {
		return pairlinkErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrConnectivity)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var pairlinkErr PairlinkError
	if As(err, &pairlinkErr) {
		return pairlinkErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement PairlinkError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var pairlinkErr PairlinkError
	if As(err, &pairlinkErr) {
		return pairlinkErr.Severity()
	}

	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike a bare fmt.Errorf, it returns nil for a nil error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
