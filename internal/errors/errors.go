package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a venvkeep error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrInterpreterNotFound ErrorCode = "INTERPRETER_NOT_FOUND" // 400
	ErrEnvRootMismatch     ErrorCode = "ENV_ROOT_MISMATCH"     // 409
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"        // 404
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrCancelled           ErrorCode = "CANCELLED"             // 499
	ErrInternal            ErrorCode = "INTERNAL"              // 500
)

// VenvError represents a structured error with code, status, and details.
type VenvError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *VenvError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *VenvError {
	return &VenvError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInterpreterNotFound creates a 400 error when the interpreter path is missing or not a file.
func NewInterpreterNotFound(path string) *VenvError {
	return &VenvError{
		Code:    ErrInterpreterNotFound,
		Status:  400,
		Message: fmt.Sprintf("python interpreter not found: %s", path),
		Details: map[string]any{"interpreter": path},
	}
}

// NewEnvRootMismatch creates a 409 error when a plugin directory does not live
// under the same environment root as the interpreter.
func NewEnvRootMismatch(interpreter, dir string) *VenvError {
	return &VenvError{
		Code:    ErrEnvRootMismatch,
		Status:  409,
		Message: fmt.Sprintf("directory %q is not in the same environment root as %q", dir, interpreter),
		Details: map[string]any{"interpreter": interpreter, "dir": dir},
	}
}

// NewFileNotFound creates a 404 error for a missing manifest or snapshot file.
func NewFileNotFound(path string) *VenvError {
	return &VenvError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNotFound creates a 404 error for a missing stored record (e.g. a run ID).
func NewNotFound(identifier string) *VenvError {
	return &VenvError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewCancelled creates a 499 error for operations stopped before any work began.
func NewCancelled() *VenvError {
	return &VenvError{
		Code:    ErrCancelled,
		Status:  499,
		Message: "operation cancelled",
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *VenvError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &VenvError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a VenvError with the given code.
func Is(err error, code ErrorCode) bool {
	var vErr *VenvError
	if stderrors.As(err, &vErr) {
		return vErr.Code == code
	}
	return false
}
