package errors

import (
	"fmt"
	"testing"
)

func TestMelError_Error(t *testing.T) {
	err := &MelError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "session not found: abc",
	}

	expected := "NOT_FOUND: session not found: abc"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("injects must be a JSON array of objects")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	if err.Message != "injects must be a JSON array of objects" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewMissingCredential(t *testing.T) {
	err := NewMissingCredential()

	if err.Code != ErrMissingCredential {
		t.Errorf("Code = %q, want %q", err.Code, ErrMissingCredential)
	}
	if err.Status != 401 {
		t.Errorf("Status = %d, want 401", err.Status)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("session", "s-1")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["kind"] != "session" {
		t.Errorf("Details[kind] = %v, want %q", err.Details["kind"], "session")
	}
	if err.Details["identifier"] != "s-1" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "s-1")
	}
}

func TestNewUpstream(t *testing.T) {
	t.Run("propagates upstream status", func(t *testing.T) {
		err := NewUpstream(429, `{"error":"rate limited"}`)

		if err.Code != ErrUpstream {
			t.Errorf("Code = %q, want %q", err.Code, ErrUpstream)
		}
		if err.Status != 429 {
			t.Errorf("Status = %d, want 429", err.Status)
		}
		if err.Details["upstream_body"] != `{"error":"rate limited"}` {
			t.Errorf("Details[upstream_body] = %v", err.Details["upstream_body"])
		}
	})

	t.Run("non-error status becomes bad gateway", func(t *testing.T) {
		err := NewUpstream(200, "")
		if err.Status != 502 {
			t.Errorf("Status = %d, want 502", err.Status)
		}
	})
}

func TestNewCancelled(t *testing.T) {
	err := NewCancelled("export")
	if err.Code != ErrCancelled {
		t.Errorf("Code = %q, want %q", err.Code, ErrCancelled)
	}
	if err.Status != StatusClientClosedRequest {
		t.Errorf("Status = %d, want %d", err.Status, StatusClientClosedRequest)
	}
}

func TestNewInternal(t *testing.T) {
	t.Run("with error", func(t *testing.T) {
		err := NewInternal(fmt.Errorf("database connection failed"))

		if err.Code != ErrInternal {
			t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
		}
		if err.Status != 500 {
			t.Errorf("Status = %d, want 500", err.Status)
		}
		if err.Message != "an internal error occurred" {
			t.Errorf("Message = %q, want %q", err.Message, "an internal error occurred")
		}
		if err.Details["internal_error"] != "database connection failed" {
			t.Errorf("Details[internal_error] = %q", err.Details["internal_error"])
		}
	})

	t.Run("with nil", func(t *testing.T) {
		err := NewInternal(nil)
		if err.Details == nil {
			t.Error("Details should not be nil")
		}
	})
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		if !Is(NewNotFound("session", "x"), ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		if Is(NewNotFound("session", "x"), ErrInvalidRequest) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("plain error", func(t *testing.T) {
		if Is(fmt.Errorf("plain error"), ErrNotFound) {
			t.Error("Is() = true, want false for non-MelError")
		}
	})

	t.Run("wrapped MelError", func(t *testing.T) {
		wrapped := fmt.Errorf("injects[0]: %w", NewInvalidRequest("bad"))
		if !Is(wrapped, ErrInvalidRequest) {
			t.Error("Is() = false, want true for wrapped MelError")
		}
	})
}
