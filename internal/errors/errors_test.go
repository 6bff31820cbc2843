package errors

import (
	"fmt"
	"testing"
)

func TestVenvError_Error(t *testing.T) {
	err := &VenvError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "run not found",
	}

	expected := "NOT_FOUND: run not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("interpreter is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "interpreter is required" {
		t.Errorf("Message = %q, want %q", err.Message, "interpreter is required")
	}
}

func TestNewInterpreterNotFound(t *testing.T) {
	err := NewInterpreterNotFound("/venv/bin/python")

	if err.Code != ErrInterpreterNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrInterpreterNotFound)
	}
	if err.Details["interpreter"] != "/venv/bin/python" {
		t.Errorf("Details[interpreter] = %v, want %q", err.Details["interpreter"], "/venv/bin/python")
	}
}

func TestNewEnvRootMismatch(t *testing.T) {
	err := NewEnvRootMismatch("/a/python", "/b/plugins")

	if err.Code != ErrEnvRootMismatch {
		t.Errorf("Code = %q, want %q", err.Code, ErrEnvRootMismatch)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
	if err.Details["dir"] != "/b/plugins" {
		t.Errorf("Details[dir] = %v, want %q", err.Details["dir"], "/b/plugins")
	}
}

func TestNewFileNotFound(t *testing.T) {
	err := NewFileNotFound("snapshot.txt")

	if err.Code != ErrFileNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrFileNotFound)
	}
	if err.Details["path"] != "snapshot.txt" {
		t.Errorf("Details[path] = %v, want %q", err.Details["path"], "snapshot.txt")
	}
}

func TestNewInternal_NilError(t *testing.T) {
	err := NewInternal(nil)

	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
	if err.Status != 500 {
		t.Errorf("Status = %d, want 500", err.Status)
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("01ABC")

	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrInternal) {
		t.Error("Is(err, ErrInternal) = true, want false")
	}
	if Is(fmt.Errorf("plain"), ErrNotFound) {
		t.Error("Is(plain error, ErrNotFound) = true, want false")
	}
	if Is(nil, ErrNotFound) {
		t.Error("Is(nil, ErrNotFound) = true, want false")
	}
}

func TestIs_Wrapped(t *testing.T) {
	err := fmt.Errorf("restore: %w", NewInterpreterNotFound("/x"))

	if !Is(err, ErrInterpreterNotFound) {
		t.Error("Is(wrapped, ErrInterpreterNotFound) = false, want true")
	}
}
