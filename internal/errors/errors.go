package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a melchat error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL" // 401
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrCancelled         ErrorCode = "CANCELLED"          // 499
	ErrUpstream          ErrorCode = "UPSTREAM_ERROR"     // upstream status
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// StatusClientClosedRequest is the non-standard status used for cancelled operations.
const StatusClientClosedRequest = 499

// MelError represents a structured error with code, status, and details.
type MelError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for malformed input.
func NewInvalidRequest(msg string) *MelError {
	return &MelError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewMissingCredential creates a 401 error when no API key is available
// from the caller or the environment.
func NewMissingCredential() *MelError {
	return &MelError{
		Code:    ErrMissingCredential,
		Status:  401,
		Message: "no API key provided and none configured in the environment",
	}
}

// NewNotFound creates a 404 error for an unknown session or document.
func NewNotFound(kind, identifier string) *MelError {
	return &MelError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *MelError {
	return &MelError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewCancelled creates an error for an operation aborted by context cancellation.
func NewCancelled(operation string) *MelError {
	return &MelError{
		Code:    ErrCancelled,
		Status:  StatusClientClosedRequest,
		Message: fmt.Sprintf("%s cancelled", operation),
	}
}

// NewUpstream creates an error carrying the status and body of a failed
// chat-completion call. The upstream status is propagated as-is.
func NewUpstream(status int, body string) *MelError {
	if status < 400 {
		status = 502
	}
	return &MelError{
		Code:    ErrUpstream,
		Status:  status,
		Message: fmt.Sprintf("chat completion request failed with status %d", status),
		Details: map[string]any{"upstream_status": status, "upstream_body": body},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error is kept in Details for logging.
func NewInternal(err error) *MelError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &MelError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is (or wraps) a MelError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MelError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// As is a thin alias for the standard library's errors.As.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
