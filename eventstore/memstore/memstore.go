// Package memstore is the in-memory twin of the durable event store: an
// ordered per-stream list behind a mutex, with identical OCC and
// snapshot semantics to eventstore/pg, including reporting the same
// ConcurrencyConflict error Kind, so conflict-handling tests behave the
// same against either twin.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

type stream struct {
	events   []eventstore.StoredEvent
	snapshot *eventstore.Snapshot
}

// Store is the in-memory EventStore implementation.
type Store struct {
	mu      sync.Mutex
	streams map[eventstore.StreamID]*stream
	now     func() time.Time
}

// New returns an empty in-memory event store.
func New() *Store {
	return &Store{
		streams: make(map[eventstore.StreamID]*stream),
		now:     time.Now,
	}
}

// NewWithClock lets tests pin CreatedAt timestamps.
func NewWithClock(now func() time.Time) *Store {
	s := New()
	s.now = now
	return s
}

var _ eventstore.EventStore = (*Store)(nil)

func (s *Store) AppendEvents(ctx context.Context, id eventstore.StreamID, expectedVersion *eventstore.Version, events []eventstore.SerializedEvent) (eventstore.Version, error) {
	if len(events) == 0 {
		return 0, eventstore.EmptyEventList(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok {
		st = &stream{}
		s.streams[id] = st
	}

	tail := eventstore.Version(len(st.events))
	if expectedVersion != nil && *expectedVersion != tail {
		return 0, eventstore.ConcurrencyConflict(id, *expectedVersion)
	}

	appended := make([]eventstore.StoredEvent, 0, len(events))
	version := tail
	for _, e := range events {
		version++
		appended = append(appended, eventstore.StoredEvent{
			SerializedEvent: e,
			Stream:          id,
			Version:         version,
			CreatedAt:       s.now(),
		})
	}

	// Only mutate the stream after every event has been prepared, so a
	// failure above leaves the store untouched.
	st.events = append(st.events, appended...)
	return version, nil
}

func (s *Store) LoadEvents(ctx context.Context, id eventstore.StreamID, fromVersion *eventstore.Version) ([]eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok {
		return nil, nil
	}

	from := eventstore.Version(0)
	if fromVersion != nil {
		from = *fromVersion
	}

	out := make([]eventstore.StoredEvent, 0, len(st.events))
	for _, e := range st.events {
		if e.Version > from {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, id eventstore.StreamID, version eventstore.Version, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok {
		st = &stream{}
		s.streams[id] = st
	}

	snap := eventstore.Snapshot{
		Stream:    id,
		Version:   version,
		State:     append([]byte(nil), state...),
		CreatedAt: s.now(),
	}
	st.snapshot = &snap
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, id eventstore.StreamID) (eventstore.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.streams[id]
	if !ok || st.snapshot == nil {
		return eventstore.Snapshot{}, false, nil
	}
	return *st.snapshot, true, nil
}
