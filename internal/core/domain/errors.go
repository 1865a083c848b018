package domain

import (
	"context"
	"errors"
	"fmt"
)

// DomainError represents an inspection error with a structured error code.
//
// Codes have the form MS-<AREA>-<NNNN>. The last four digits follow HTTP
// conventions loosely: 4xxx is recoverable by the caller, 5xxx is fatal for
// the operation that produced it.
type DomainError struct {
	Code    string // Error code (e.g., "MS-HEAP-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Initialization Errors (INIT)
// ============================================================================

var (
	// ErrInitialization indicates the runtime handle could not be created:
	// no diagnostic component for the dump's runtime, an incompatible
	// component, or a corrupt dump. Fatal for the session being opened.
	ErrInitialization = NewDomainError("MS-INIT-5000", "runtime initialization failed")

	// ErrNoRuntime indicates the dump declares no managed runtime at all.
	ErrNoRuntime = NewDomainError("MS-INIT-5001", "dump declares no runtime")
)

// ============================================================================
// Heap Lookup Errors (HEAP)
// ============================================================================

var (
	// ErrTypeNotFound indicates a type name or handle has no catalog entry.
	ErrTypeNotFound = NewDomainError("MS-HEAP-4040", "type not found")

	// ErrAddressNotFound indicates an address is not an object known to the index.
	ErrAddressNotFound = NewDomainError("MS-HEAP-4041", "address not found")

	// ErrFieldNotFound indicates a field name is not part of a type's layout.
	ErrFieldNotFound = NewDomainError("MS-HEAP-4042", "field not found")
)

// ============================================================================
// Heap Index Errors (INDEX)
// ============================================================================

var (
	// ErrNotReady indicates a query against an index that has not been
	// built, or whose last build was cancelled or failed.
	ErrNotReady = NewDomainError("MS-INDEX-4090", "heap index not ready")

	// ErrBuildInProgress indicates a second concurrent build was requested.
	ErrBuildInProgress = NewDomainError("MS-INDEX-4091", "heap index build already in progress")

	// ErrBuildCancelled indicates the build observed its cancellation signal.
	// The cause is context.Canceled or context.DeadlineExceeded.
	ErrBuildCancelled = NewDomainError("MS-INDEX-4990", "heap index build cancelled")

	// ErrBuildFailed indicates the build failed for a reason other than
	// cancellation.
	ErrBuildFailed = NewDomainError("MS-INDEX-5000", "heap index build failed")

	// ErrIndexClosed indicates the index was released.
	ErrIndexClosed = NewDomainError("MS-INDEX-5030", "heap index closed")
)

// ============================================================================
// Decode Errors (DEC)
// ============================================================================

var (
	// ErrDecodeFailure indicates inaccessible or malformed memory during a
	// value decode. Callers present it as "value unavailable".
	ErrDecodeFailure = NewDomainError("MS-DEC-4220", "value decode failed")
)

// ============================================================================
// Session and Worker Errors (SESS, WRK)
// ============================================================================

var (
	// ErrSessionClosed indicates the session was disposed.
	ErrSessionClosed = NewDomainError("MS-SESS-4100", "session closed")

	// ErrSessionNotFound indicates no open session has the requested id.
	ErrSessionNotFound = NewDomainError("MS-SESS-4040", "session not found")

	// ErrSessionConflict indicates a session with the same id is already open.
	ErrSessionConflict = NewDomainError("MS-SESS-4090", "session id conflict")

	// ErrWorkerStopped indicates work was submitted to a stopped worker.
	ErrWorkerStopped = NewDomainError("MS-WRK-5030", "worker stopped")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("MS-ARG-1001", "invalid argument")
)

// IsNotFound reports whether err is any of the NotFound family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTypeNotFound) ||
		errors.Is(err, ErrAddressNotFound) ||
		errors.Is(err, ErrFieldNotFound)
}

// IsCancelled reports whether err is a cancelled build, as opposed to a
// genuine failure the caller may not want to retry.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrBuildCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
