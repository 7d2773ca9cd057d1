// Package corerr defines the unified error taxonomy shared by the effect
// executor, the event store, the event bus and the Store runtime.
package corerr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error independently of which component raised it, so
// callers can branch on "what kind of thing went wrong" without importing
// every component's error types.
type Kind string

const (
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindNotFound            Kind = "not_found"
	KindBackendUnavailable  Kind = "backend_unavailable"
	KindEmptyInput          Kind = "empty_input"
	KindSerialization       Kind = "serialization"
	KindTimeout             Kind = "timeout"
	KindShutdownRejected    Kind = "shutdown_rejected"
	KindPoisoned            Kind = "poisoned"
	KindHarnessMismatch     Kind = "harness_mismatch"
)

// Error is the concrete error value carried through the framework. It wraps
// an optional cause, mirroring the fmt.Errorf("...: %w", err) convention
// used for database/sql and amqp errors elsewhere in this module.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Elapsed and InFlight are populated for KindTimeout errors.
	Elapsed  time.Duration
	InFlight int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, corerr.New(corerr.KindX, "")) style checks:
// any *Error target matches when its Kind equals this error's Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Timeout builds a KindTimeout error carrying the elapsed wait and the
// in-flight count observed at the moment the wait gave up.
func Timeout(message string, elapsed time.Duration, inFlight int) *Error {
	return &Error{Kind: KindTimeout, Message: message, Elapsed: elapsed, InFlight: inFlight}
}

// Of reports whether err is a corerr.Error of the given Kind, unwrapping
// through any wrapper chain.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
