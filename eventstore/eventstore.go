// Package eventstore defines the append-only, stream-partitioned log
// contract: optimistic concurrency control on append, an ordered range
// scan on load, and at-most-one snapshot per stream. The framework never
// inspects event payload bytes; event_type is the only thing it reads.
package eventstore

import (
	"context"
	"time"

	"github.com/rakhimjonshokirov/eventkit/corerr"
)

// StreamID is an opaque stream identifier. Convention is
// "<aggregate>-<uuid>" but the store never parses it.
type StreamID string

// Version is the monotonically increasing, gap-free position of an event
// within its stream. Version 0 means "stream has no events yet".
type Version int64

// SerializedEvent is the framework's view of a domain event: an opaque
// type tag plus opaque bytes. The framework never deserializes
// Data.
type SerializedEvent struct {
	EventType string
	Data      []byte
	Metadata  map[string]any
}

// StoredEvent is a SerializedEvent annotated with its position once
// persisted.
type StoredEvent struct {
	SerializedEvent
	Stream    StreamID
	Version   Version
	CreatedAt time.Time
}

// Snapshot is a persisted aggregate-state snapshot at a given version.
type Snapshot struct {
	Stream    StreamID
	Version   Version
	State     []byte
	CreatedAt time.Time
}

// EventStore is the contract every implementation (durable or in-memory
// twin) must satisfy identically: the in-memory twin must not
// be "nicer" than the durable one. Concurrency conflicts must report the
// same error Kind from both, so tests that exercise conflict handling
// catch real bugs regardless of which twin backs them.
type EventStore interface {
	// AppendEvents appends events to stream, atomically. When
	// expectedVersion is nil, the append is unconditional (always after
	// the current tail). When non-nil, the current tail version must
	// equal *expectedVersion or the call fails with a KindConcurrencyConflict
	// error and leaves the store untouched. events must be non-empty;
	// an empty slice fails with KindEmptyInput. On success, returns the
	// version of the last appended event.
	AppendEvents(ctx context.Context, stream StreamID, expectedVersion *Version, events []SerializedEvent) (Version, error)

	// LoadEvents returns events with version strictly greater than
	// fromVersion (or all events when fromVersion is nil), in ascending
	// version order. An empty result is not an error.
	LoadEvents(ctx context.Context, stream StreamID, fromVersion *Version) ([]StoredEvent, error)

	// SaveSnapshot upserts the single snapshot row for stream. version
	// must correspond to a version actually present in the stream;
	// implementations may trust the caller but must not corrupt state on
	// mismatch.
	SaveSnapshot(ctx context.Context, stream StreamID, version Version, state []byte) error

	// LoadSnapshot returns the current snapshot for stream, or ok=false
	// if none exists. Absence is not an error.
	LoadSnapshot(ctx context.Context, stream StreamID) (snap Snapshot, ok bool, err error)
}

// ConcurrencyConflict builds the KindConcurrencyConflict error returned
// when an append's expectedVersion doesn't match the stream's tail.
func ConcurrencyConflict(stream StreamID, expected Version) error {
	return corerr.New(corerr.KindConcurrencyConflict,
		"append to stream "+string(stream)+" failed: expected version mismatch")
}

// EmptyEventList builds the KindEmptyInput error for an append called
// with no events.
func EmptyEventList(stream StreamID) error {
	return corerr.New(corerr.KindEmptyInput, "append to stream "+string(stream)+" called with no events")
}

// BackendUnavailable wraps a transport-level failure.
func BackendUnavailable(message string, cause error) error {
	return corerr.Wrap(corerr.KindBackendUnavailable, message, cause)
}

// SerializationErr wraps a (de)serialization failure.
func SerializationErr(message string, cause error) error {
	return corerr.Wrap(corerr.KindSerialization, message, cause)
}
