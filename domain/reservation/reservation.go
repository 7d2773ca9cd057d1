// Package reservation is the per-order seat-hold record: one instance
// per order, distinct from package inventory's per-ticket-class ledger.
// A checkout saga
// opens a reservation alongside placing the order, before it asks
// inventory for a hold, confirms it once payment captures, and closes it
// when the checkout fails (including an inventory-hold timeout).
package reservation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Status is the reservation's lifecycle position.
type Status string

const (
	StatusNone      Status = ""
	StatusOpen      Status = "open"
	StatusConfirmed Status = "confirmed"
	StatusClosed    Status = "closed"
)

// ActionKind tags the reservation aggregate's command/event union.
type ActionKind string

const (
	Create    ActionKind = "reservation.create"
	Created   ActionKind = "reservation.created"
	Confirm   ActionKind = "reservation.confirm"
	Confirmed ActionKind = "reservation.confirmed"
	Close     ActionKind = "reservation.close"
	Closed    ActionKind = "reservation.closed"
)

// Action is the reservation aggregate's command/event union.
type Action struct {
	Kind        ActionKind
	OrderID     string
	TicketClass string
	Quantity    int
	Reason      string
}

// Classifier answers reducer.Classifier for the reservation Action union.
var Classifier = reducerClassifier{}

type reducerClassifier struct{}

func (reducerClassifier) IsEvent(a Action) bool {
	switch a.Kind {
	case Created, Confirmed, Closed:
		return true
	default:
		return false
	}
}

// State is the replayed reservation record for one order.
type State struct {
	OrderID     string
	Status      Status
	TicketClass string
	Quantity    int
	Reason      string
	Version     int64
}

// Reducer implements reducer.Reducer[State, Action, domain.Environment].
type Reducer struct{}

func (Reducer) Reduce(state *State, action Action, env domain.Environment) effect.Effect[Action] {
	switch action.Kind {
	case Create:
		if state.Status != StatusNone {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Created, OrderID: action.OrderID, TicketClass: action.TicketClass, Quantity: action.Quantity}, env)

	case Created:
		state.OrderID = action.OrderID
		state.Status = StatusOpen
		state.TicketClass = action.TicketClass
		state.Quantity = action.Quantity
		state.Version++
		return effect.None[Action]()

	case Confirm:
		if state.Status != StatusOpen {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Confirmed, OrderID: state.OrderID}, env)

	case Confirmed:
		state.Status = StatusConfirmed
		state.Version++
		return effect.None[Action]()

	case Close:
		if state.Status == StatusClosed {
			return effect.None[Action]() // idempotent: already closed
		}
		return persist(state, Action{Kind: Closed, OrderID: state.OrderID, Reason: action.Reason}, env)

	case Closed:
		state.Status = StatusClosed
		state.Reason = action.Reason
		state.Version++
		return effect.None[Action]()
	}

	return effect.None[Action]()
}

// StreamID builds the "reservation-<order-id>" convention.
func StreamID(orderID string) eventstore.StreamID {
	return eventstore.StreamID("reservation-" + orderID)
}

func persist(state *State, evt Action, env domain.Environment) effect.Effect[Action] {
	data, marshalErr := json.Marshal(evt)
	stream := StreamID(evt.OrderID)
	expected := eventstore.Version(state.Version)

	storeOp := effect.EventStoreOp[Action]{
		Run: func() (any, error) {
			if marshalErr != nil {
				return nil, eventstore.SerializationErr("marshal reservation event", marshalErr)
			}
			_, err := env.Store.AppendEvents(context.Background(), stream, &expected, []eventstore.SerializedEvent{
				{EventType: string(evt.Kind), Data: data},
			})
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
			return env.Bus.Publish(context.Background(), eventbus.EventsTopic("reservation"), eventstore.SerializedEvent{
				EventType: string(evt.Kind), Data: data,
			})
		},
		OnResult: func(err error) *Action { return nil },
	}

	return effect.Sequential(effect.EventStore(storeOp), effect.Publish(pubOp))
}

// Rehydrate replays a stream's stored events into a fresh State.
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

// Decode unmarshals a serialized reservation event back into an Action.
func Decode(evt eventstore.SerializedEvent) (Action, error) {
	var a Action
	a.Kind = ActionKind(evt.EventType)
	if !Classifier.IsEvent(a) {
		return a, fmt.Errorf("reservation: %q is not a replayable event type", evt.EventType)
	}
	if err := json.Unmarshal(evt.Data, &a); err != nil {
		return a, eventstore.SerializationErr("unmarshal reservation event", err)
	}
	return a, nil
}
