// Package errors provides structured error types for the corral grouping
// engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-facing policy-violation messages (toast-style surfacing)
//   - Error wrapping with context preservation
//
// # Error taxonomy
//
// The grouping engine distinguishes four failure classes. Only the first
// two produce errors from this package:
//
//   - Policy violations (CROSS_GROUP_COMPOSITION, GATE_FEEDBACK,
//     CYCLIC_DEFINITION): the operation aborts, partial mutations are
//     rolled back, and the error is surfaced to the user.
//   - Input rejections and lookups (INVALID_SELECTION, GROUP_NOT_FOUND,
//     DEFINITION_NOT_FOUND): the operation is a no-op.
//   - Best-effort passes (geometry, highlight) degrade to empty derived
//     state instead of erroring.
//   - Consistency repair (membership reconciliation, proxy cleanup)
//     silently heals drift.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeGroupNotFound, "no group %q", id)
//	if errors.Is(err, errors.ErrCodeGroupNotFound) {
//	    // Handle missing group
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStore, origErr, "load document %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidSelection Code = "INVALID_SELECTION"
	ErrCodeInvalidName      Code = "INVALID_NAME"
	ErrCodeInvalidDocument  Code = "INVALID_DOCUMENT"
	ErrCodeInvalidConfig    Code = "INVALID_CONFIG"

	// Policy violations surfaced to the user
	ErrCodeCrossGroup       Code = "CROSS_GROUP_COMPOSITION"
	ErrCodeGateFeedback     Code = "GATE_FEEDBACK"
	ErrCodeCyclicDefinition Code = "CYCLIC_DEFINITION"

	// Resource not found errors
	ErrCodeGroupNotFound      Code = "GROUP_NOT_FOUND"
	ErrCodeNodeNotFound       Code = "NODE_NOT_FOUND"
	ErrCodeDefinitionNotFound Code = "DEFINITION_NOT_FOUND"
	ErrCodeDocumentNotFound   Code = "DOCUMENT_NOT_FOUND"

	// Storage errors
	ErrCodeStore Code = "STORE_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// IsPolicyViolation reports whether the error is one of the user-surfaced
// policy classes (cross-group composition, gate feedback, cyclic compound
// definition).
func IsPolicyViolation(err error) bool {
	switch GetCode(err) {
	case ErrCodeCrossGroup, ErrCodeGateFeedback, ErrCodeCyclicDefinition:
		return true
	}
	return false
}
