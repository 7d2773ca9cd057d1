// Package payment is the payment aggregate: authorize a hold against a
// customer's tender, capture it once the order is confirmed, or refund a
// captured charge. An external-call step, a payment gateway call, that
// the reducer models as a pending state entered by a command and
// resolved by an event fed back once the external call's result is
// known.
package payment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Status is the payment's lifecycle position.
type Status string

const (
	StatusNone       Status = ""
	StatusAuthorized Status = "authorized"
	StatusCaptured   Status = "captured"
	StatusRefunded   Status = "refunded"
	StatusDeclined   Status = "declined"
)

// ActionKind tags the payment aggregate's command/event union.
type ActionKind string

const (
	Authorize  ActionKind = "payment.authorize"
	Authorized ActionKind = "payment.authorized"
	Decline    ActionKind = "payment.decline"
	Declined   ActionKind = "payment.declined"
	Capture    ActionKind = "payment.capture"
	Captured   ActionKind = "payment.captured"
	Refund     ActionKind = "payment.refund"
	Refunded   ActionKind = "payment.refunded"
)

// Action is the payment aggregate's command/event union.
type Action struct {
	Kind          ActionKind
	OrderID       string
	AmountCents   int64
	GatewayRef    string
	DeclineReason string
}

// Classifier answers reducer.Classifier for the payment Action union.
var Classifier = reducerClassifier{}

type reducerClassifier struct{}

func (reducerClassifier) IsEvent(a Action) bool {
	switch a.Kind {
	case Authorized, Declined, Captured, Refunded:
		return true
	default:
		return false
	}
}

// State is the replayed payment projection for one order.
type State struct {
	OrderID     string
	Status      Status
	AmountCents int64
	GatewayRef  string
	Version     int64
}

// Reducer implements reducer.Reducer[State, Action, domain.Environment].
type Reducer struct{}

func (Reducer) Reduce(state *State, action Action, env domain.Environment) effect.Effect[Action] {
	switch action.Kind {
	case Authorize:
		if state.Status != StatusNone {
			return effect.None[Action]()
		}
		if action.AmountCents <= 0 {
			return persist(state, Action{Kind: Declined, OrderID: action.OrderID, DeclineReason: "non-positive amount"}, env)
		}
		return persist(state, Action{Kind: Authorized, OrderID: action.OrderID, AmountCents: action.AmountCents, GatewayRef: action.GatewayRef}, env)

	case Authorized:
		state.OrderID = action.OrderID
		state.Status = StatusAuthorized
		state.AmountCents = action.AmountCents
		state.GatewayRef = action.GatewayRef
		state.Version++
		return effect.None[Action]()

	case Declined:
		state.OrderID = action.OrderID
		state.Status = StatusDeclined
		state.Version++
		return effect.None[Action]()

	case Capture:
		if state.Status != StatusAuthorized {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Captured, OrderID: state.OrderID, AmountCents: state.AmountCents}, env)

	case Captured:
		state.Status = StatusCaptured
		state.Version++
		return effect.None[Action]()

	case Refund:
		if state.Status != StatusCaptured {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Refunded, OrderID: state.OrderID, AmountCents: state.AmountCents}, env)

	case Refunded:
		state.Status = StatusRefunded
		state.Version++
		return effect.None[Action]()
	}

	return effect.None[Action]()
}

// StreamID builds the "payment-<order-id>" convention.
func StreamID(orderID string) eventstore.StreamID {
	return eventstore.StreamID("payment-" + orderID)
}

func persist(state *State, evt Action, env domain.Environment) effect.Effect[Action] {
	data, marshalErr := json.Marshal(evt)
	stream := StreamID(evt.OrderID)
	expected := eventstore.Version(state.Version)

	storeOp := effect.EventStoreOp[Action]{
		Run: func() (any, error) {
			if marshalErr != nil {
				return nil, eventstore.SerializationErr("marshal payment event", marshalErr)
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
			return env.Bus.Publish(context.Background(), eventbus.EventsTopic("payment"), eventstore.SerializedEvent{
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

// Decode unmarshals a serialized payment event back into an Action.
func Decode(evt eventstore.SerializedEvent) (Action, error) {
	var a Action
	a.Kind = ActionKind(evt.EventType)
	if !Classifier.IsEvent(a) {
		return a, fmt.Errorf("payment: %q is not a replayable event type", evt.EventType)
	}
	if err := json.Unmarshal(evt.Data, &a); err != nil {
		return a, eventstore.SerializationErr("unmarshal payment event", err)
	}
	return a, nil
}
