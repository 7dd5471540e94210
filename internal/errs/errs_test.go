package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(Busy, "symbol_busy", "a run is already in flight")
	if KindOf(err) != Busy {
		t.Errorf("Expected Busy, got %s", KindOf(err))
	}

	// Wrapped errors still classify.
	wrapped := fmt.Errorf("start run: %w", err)
	if KindOf(wrapped) != Busy {
		t.Errorf("Expected Busy through fmt wrap, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != Unavailable {
		t.Error("Unclassified errors should report Unavailable")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(PersistenceError, "finalize run", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable via errors.Is")
	}
	if KindOf(err) != PersistenceError {
		t.Errorf("Expected PersistenceError, got %s", KindOf(err))
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{Transient, true},
		{RateLimited, true},
		{Timeout, true},
		{InvalidInput, false},
		{Rejected, false},
		{Busy, false},
		{Auth, false},
	}
	for _, c := range cases {
		err := New(c.kind, "x", "x")
		if got := Retryable(err); got != c.want {
			t.Errorf("Retryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestRejectedWithCarriesCode(t *testing.T) {
	err := RejectedWith("MARGIN", "insufficient margin")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("Expected *Error")
	}
	if e.Code != "MARGIN" {
		t.Errorf("Expected code MARGIN, got %s", e.Code)
	}
	if e.Kind != Rejected {
		t.Errorf("Expected Rejected, got %s", e.Kind)
	}
}
