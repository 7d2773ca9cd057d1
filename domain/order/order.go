// Package order is the ticket-order aggregate: a command-validates /
// event-persists / event-replays shape expressed as a Reducer instead of
// a mutable struct with an Apply/Changes list, per reducer.go's
// documented convention.
package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
	"github.com/rakhimjonshokirov/eventkit/saga"
)

// Status is the order's lifecycle position.
type Status string

const (
	StatusNone      Status = ""
	StatusPlaced    Status = "placed"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ActionKind tags which variant Action holds; the Place/Confirm/Cancel/
// Fail commands and their Placed/Confirmed/Cancelled/Failed event
// counterparts share one struct, per reducer.Classifier's convention.
type ActionKind string

const (
	Place     ActionKind = "order.place"
	Placed    ActionKind = "order.placed"
	Confirm   ActionKind = "order.confirm"
	Confirmed ActionKind = "order.confirmed"
	Cancel    ActionKind = "order.cancel"
	Cancelled ActionKind = "order.cancelled"
	Fail      ActionKind = "order.fail"
	Failed    ActionKind = "order.failed"
)

// Action is the order aggregate's command/event union.
type Action struct {
	Kind           ActionKind
	OrderID        string
	CorrelationID  saga.CorrelationID
	CustomerID     string
	TicketClass    string
	Quantity       int
	UnitPriceCents int64
	Reason         string
}

// Classifier answers reducer.Classifier for the order Action union.
var Classifier = reducerClassifier{}

type reducerClassifier struct{}

func (reducerClassifier) IsEvent(a Action) bool {
	switch a.Kind {
	case Placed, Confirmed, Cancelled, Failed:
		return true
	default:
		return false
	}
}

// State is the order aggregate's replayed projection.
type State struct {
	OrderID        string
	Status         Status
	CustomerID     string
	TicketClass    string
	Quantity       int
	UnitPriceCents int64
	Version        int64
}

// Reducer implements reducer.Reducer[State, Action, domain.Environment].
type Reducer struct{}

func (Reducer) Reduce(state *State, action Action, env domain.Environment) effect.Effect[Action] {
	switch action.Kind {
	case Place:
		if state.Status != StatusNone {
			return effect.None[Action]() // already placed; at-least-once no-op
		}
		if action.Quantity <= 0 {
			return effect.None[Action]()
		}
		return persist(state, Action{
			Kind: Placed, OrderID: action.OrderID, CorrelationID: action.CorrelationID,
			CustomerID: action.CustomerID, TicketClass: action.TicketClass,
			Quantity: action.Quantity, UnitPriceCents: action.UnitPriceCents,
		}, env)

	case Placed:
		state.OrderID = action.OrderID
		state.Status = StatusPlaced
		state.CustomerID = action.CustomerID
		state.TicketClass = action.TicketClass
		state.Quantity = action.Quantity
		state.UnitPriceCents = action.UnitPriceCents
		state.Version++
		return effect.None[Action]()

	case Confirm:
		if state.Status != StatusPlaced {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Confirmed, OrderID: state.OrderID, CorrelationID: action.CorrelationID}, env)

	case Confirmed:
		state.Status = StatusConfirmed
		state.Version++
		return effect.None[Action]()

	case Cancel, Fail:
		if state.Status == StatusCancelled || state.Status == StatusFailed {
			return effect.None[Action]() // idempotent: already terminal
		}
		kind := Cancelled
		if action.Kind == Fail {
			kind = Failed
		}
		return persist(state, Action{Kind: kind, OrderID: state.OrderID, CorrelationID: action.CorrelationID, Reason: action.Reason}, env)

	case Cancelled:
		state.Status = StatusCancelled
		state.Version++
		return effect.None[Action]()

	case Failed:
		state.Status = StatusFailed
		state.Version++
		return effect.None[Action]()
	}

	return effect.None[Action]()
}

// StreamID builds the "order-<id>" convention.
func StreamID(orderID string) eventstore.StreamID {
	return eventstore.StreamID("order-" + orderID)
}

// persist appends evt to this order's stream and, on success, publishes
// it and feeds it back as the applied event (the reducer's own Placed/
// Confirmed/... arm runs next and mutates state): the concrete
// AppendEvents+PublishEvent pairing every event-sourced reducer in this
// module follows. The publish is a direct bus call sequenced after the
// append; nothing is written to the outbox table.
func persist(state *State, evt Action, env domain.Environment) effect.Effect[Action] {
	data, marshalErr := json.Marshal(evt)
	stream := StreamID(evt.OrderID)
	expected := eventstore.Version(state.Version)

	// appended carries the append's outcome to the publish step, which
	// effect.Sequential starts only after the append has finished.
	var appended bool

	storeOp := effect.EventStoreOp[Action]{
		Run: func() (any, error) {
			if marshalErr != nil {
				return nil, eventstore.SerializationErr("marshal order event", marshalErr)
			}
			_, err := env.Store.AppendEvents(context.Background(), stream, &expected, []eventstore.SerializedEvent{
				{EventType: string(evt.Kind), Data: data},
			})
			appended = err == nil
			return nil, err
		},
		OnResult: func(_ any, err error) *Action {
			if err != nil {
				return nil
			}
			applied := evt
			return &applied
		},
	}

	pubOp := effect.PublishOp[Action]{
		Run: func() error {
			if marshalErr != nil {
				return marshalErr
			}
			if !appended {
				return nil
			}
			return env.Bus.Publish(context.Background(), eventbus.EventsTopic("order"), eventstore.SerializedEvent{
				EventType: string(evt.Kind), Data: data,
			})
		},
		OnResult: func(err error) *Action { return nil },
	}

	return effect.Sequential(effect.EventStore(storeOp), effect.Publish(pubOp))
}

// Rehydrate replays a stream's stored events into a fresh State, used by
// queries and by a Store warming up from the event log instead of
// starting empty.
func Rehydrate(events []eventstore.StoredEvent) (State, error) {
	var state State
	var red Reducer
	var env domain.Environment
	for _, stored := range events {
		action, err := Decode(stored.SerializedEvent)
		if err != nil {
			return state, err
		}
		red.Reduce(&state, action, env)
	}
	return state, nil
}

// Decode unmarshals a serialized order event back into an Action, used
// both by Rehydrate and by anything relaying this aggregate's published
// events elsewhere (the checkout saga's subscriber).
func Decode(evt eventstore.SerializedEvent) (Action, error) {
	var a Action
	a.Kind = ActionKind(evt.EventType)
	if !Classifier.IsEvent(a) {
		return a, fmt.Errorf("order: %q is not a replayable event type", evt.EventType)
	}
	if err := json.Unmarshal(evt.Data, &a); err != nil {
		return a, eventstore.SerializationErr("unmarshal order event", err)
	}
	return a, nil
}
