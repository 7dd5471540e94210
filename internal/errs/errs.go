package errs

import (
	"errors"
	"fmt"
)

// Kind classifies failures at component boundaries. Callers branch on the
// kind, not on error text.
type Kind string

const (
	InvalidInput     Kind = "InvalidInput"
	NotFound         Kind = "NotFound"
	Busy             Kind = "Busy"
	Unavailable      Kind = "Unavailable"
	Transient        Kind = "Transient"
	RateLimited      Kind = "RateLimited"
	Auth             Kind = "Auth"
	Rejected         Kind = "Rejected"
	Timeout          Kind = "Timeout"
	PersistenceError Kind = "PersistenceError"
	AlreadySealed    Kind = "AlreadySealed"
	NoPosition       Kind = "NoPosition"
	Cancelled        Kind = "Cancelled"
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with a stable machine-readable code alongside the
// human message. Codes surface in event payloads and API responses.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// RejectedWith carries the venue's rejection code alongside the message.
func RejectedWith(code, msg string) *Error {
	return &Error{Kind: Rejected, Code: code, Msg: msg}
}

// KindOf extracts the kind from err, unwrapping as needed. Unclassified
// errors report Unavailable.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unavailable
}

func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the error is eligible for the backoff policy at
// the boundary that issued the call.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transient, RateLimited, Timeout:
		return true
	}
	return false
}
