package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError("MS-TEST-1000", "test message"),
			expected: "[MS-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError("MS-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[MS-TEST-1001] test message: extra info",
		},
		{
			name:     "error with details and cause",
			err:      NewDomainError("MS-TEST-1002", "test message").WithDetails("x").WithCause(errors.New("boom")),
			expected: "[MS-TEST-1002] test message: x: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError("MS-TEST-1000", "message 1")
	err2 := NewDomainError("MS-TEST-1000", "message 2")
	err3 := NewDomainError("MS-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying cause")
	err := ErrInitialization.WithCause(cause)

	if errors.Unwrap(err) != cause {
		t.Errorf("Unwrap() = %v, want %v", errors.Unwrap(err), cause)
	}
	if errors.Unwrap(ErrNotReady) != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestDomainError_CopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrTypeNotFound.WithDetails("System.Foo").WithCause(errors.New("x"))

	if ErrTypeNotFound.Details != "" || ErrTypeNotFound.Cause != nil {
		t.Error("sentinel error was mutated")
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", ErrNotReady)

	if !IsDomainError(wrapped, "MS-INDEX-4090") {
		t.Error("IsDomainError should work with wrapped errors")
	}
	if IsDomainError(wrapped, "MS-INDEX-9999") {
		t.Error("IsDomainError should return false for non-matching code")
	}
	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
	if IsDomainError(errors.New("plain"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"domain error", ErrDecodeFailure, "MS-DEC-4220"},
		{"wrapped domain error", fmt.Errorf("wrapped: %w", ErrWorkerStopped), "MS-WRK-5030"},
		{"regular error", fmt.Errorf("regular error"), ""},
		{"nil error", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetErrorCode(tt.err); got != tt.expected {
				t.Errorf("GetErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	for _, err := range []error{ErrTypeNotFound, ErrAddressNotFound, ErrFieldNotFound.WithDetails("m_Name")} {
		if !IsNotFound(err) {
			t.Errorf("IsNotFound(%v) = false, want true", err)
		}
	}
	if IsNotFound(ErrNotReady) {
		t.Error("IsNotFound(ErrNotReady) = true, want false")
	}
}

func TestIsCancelled(t *testing.T) {
	cancelled := ErrBuildCancelled.WithCause(context.Canceled)

	if !IsCancelled(cancelled) {
		t.Error("IsCancelled should match ErrBuildCancelled")
	}
	if !errors.Is(cancelled, context.Canceled) {
		t.Error("cancelled build should unwrap to context.Canceled")
	}
	if IsCancelled(ErrBuildFailed.WithCause(errors.New("corrupt segment"))) {
		t.Error("a failed build must be distinguishable from a cancelled one")
	}
}
