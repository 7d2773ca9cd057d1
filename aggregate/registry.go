// Package aggregate manages one Store per aggregate instance: a lazy
// load-from-event-store-on-first-use cache, generalized with generics
// over State/Action/Environment and kept as a live cache instead of a
// load/save pair a caller must remember to invoke around every command.
package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/rakhimjonshokirov/eventkit/eventstore"
	"github.com/rakhimjonshokirov/eventkit/reducer"
	"github.com/rakhimjonshokirov/eventkit/store"
)

// Rehydrator replays a stream's stored events into a fresh State; every
// domain package in package domain/* exports one (e.g. order.Rehydrate).
type Rehydrator[State any] func(events []eventstore.StoredEvent) (State, error)

// Registry lazily creates and caches a Store per aggregate id; the Store
// it returns stays live across calls rather than being rebuilt from
// scratch on every command.
type Registry[State, Action, Environment any] struct {
	mu     sync.Mutex
	stores map[string]*store.Store[State, Action, Environment]

	evStore   eventstore.EventStore
	streamFor func(id string) eventstore.StreamID
	zero      func() State
	rehydrate Rehydrator[State]
	red       reducer.Reducer[State, Action, Environment]
	env       Environment
	opts      []store.Option[State, Action, Environment]
}

// New builds a Registry. streamFor maps an aggregate id to its event
// stream id (e.g. order.StreamID); zero returns a fresh empty State for
// an aggregate that has no stored events yet.
func New[State, Action, Environment any](
	evStore eventstore.EventStore,
	streamFor func(id string) eventstore.StreamID,
	zero func() State,
	rehydrate Rehydrator[State],
	red reducer.Reducer[State, Action, Environment],
	env Environment,
	opts ...store.Option[State, Action, Environment],
) *Registry[State, Action, Environment] {
	return &Registry[State, Action, Environment]{
		stores:    make(map[string]*store.Store[State, Action, Environment]),
		evStore:   evStore,
		streamFor: streamFor,
		zero:      zero,
		rehydrate: rehydrate,
		red:       red,
		env:       env,
		opts:      opts,
	}
}

// For returns the live Store for id, loading and replaying its stream
// from the event store on first access and
// reusing the same Store instance on every subsequent call.
func (r *Registry[State, Action, Environment]) For(ctx context.Context, id string) (*store.Store[State, Action, Environment], error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[id]; ok {
		return s, nil
	}

	events, err := r.evStore.LoadEvents(ctx, r.streamFor(id), nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate: load stream for %q: %w", id, err)
	}

	initial := r.zero()
	if len(events) > 0 {
		initial, err = r.rehydrate(events)
		if err != nil {
			return nil, fmt.Errorf("aggregate: rehydrate %q: %w", id, err)
		}
	}

	s := store.New(initial, r.red, r.env, r.opts...)
	r.stores[id] = s
	return s, nil
}

// Evict drops the cached Store for id, so the next For call rebuilds it
// from the event store. Useful after a poisoned Store needs
// to be replaced rather than left serving every future command an error.
func (r *Registry[State, Action, Environment]) Evict(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, id)
}
