// Package inventory is the ticket-class stock ledger aggregate: it books
// holds and commits against a class's total capacity and decrements
// remaining amounts as they resolve, without a matching engine.
package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// ActionKind tags the inventory aggregate's command/event union.
type ActionKind string

const (
	Open      ActionKind = "inventory.open"
	Opened    ActionKind = "inventory.opened"
	Hold      ActionKind = "inventory.hold"
	Held      ActionKind = "inventory.held"
	Release   ActionKind = "inventory.release"
	Released  ActionKind = "inventory.released"
	Commit    ActionKind = "inventory.commit"
	Committed ActionKind = "inventory.committed"
	Restock   ActionKind = "inventory.restock"
	Restocked ActionKind = "inventory.restocked"
	Rejected  ActionKind = "inventory.rejected"
)

// Action is the inventory aggregate's command/event union, keyed per
// ticket class: one stream per class.
type Action struct {
	Kind        ActionKind
	TicketClass string
	OrderID     string // present on Hold/Held/Release/Released/Commit/Committed
	Quantity    int
	Reason      string
}

// Classifier answers reducer.Classifier for the inventory Action union.
var Classifier = reducerClassifier{}

type reducerClassifier struct{}

func (reducerClassifier) IsEvent(a Action) bool {
	switch a.Kind {
	case Opened, Held, Released, Committed, Restocked, Rejected:
		return true
	default:
		return false
	}
}

// holdEntry tracks one order's held-but-not-yet-committed quantity.
type holdEntry struct {
	OrderID  string
	Quantity int
}

// State is the replayed stock ledger for one ticket class.
type State struct {
	TicketClass string
	Total       int
	Committed   int
	Holds       []holdEntry
}

// Available is the quantity neither sold nor currently held.
func (s State) Available() int {
	held := 0
	for _, h := range s.Holds {
		held += h.Quantity
	}
	return s.Total - s.Committed - held
}

func (s State) holdFor(orderID string) (int, int) {
	for i, h := range s.Holds {
		if h.OrderID == orderID {
			return i, h.Quantity
		}
	}
	return -1, 0
}

// Reducer implements reducer.Reducer[State, Action, domain.Environment].
type Reducer struct{}

func (Reducer) Reduce(state *State, action Action, env domain.Environment) effect.Effect[Action] {
	switch action.Kind {
	case Open:
		if state.Total != 0 {
			return effect.None[Action]()
		}
		if action.Quantity <= 0 {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Opened, TicketClass: action.TicketClass, Quantity: action.Quantity}, env)

	case Opened:
		state.TicketClass = action.TicketClass
		state.Total = action.Quantity
		return effect.None[Action]()

	case Hold:
		if idx, _ := state.holdFor(action.OrderID); idx != -1 {
			return effect.None[Action]() // already held for this order
		}
		if action.Quantity <= 0 || action.Quantity > state.Available() {
			return persist(state, Action{Kind: Rejected, TicketClass: state.TicketClass, OrderID: action.OrderID, Reason: "insufficient stock"}, env)
		}
		return persist(state, Action{Kind: Held, TicketClass: state.TicketClass, OrderID: action.OrderID, Quantity: action.Quantity}, env)

	case Held:
		state.Holds = append(state.Holds, holdEntry{OrderID: action.OrderID, Quantity: action.Quantity})
		return effect.None[Action]()

	case Rejected:
		return effect.None[Action]() // nothing to apply; a rejection never changes the ledger

	case Release:
		if idx, _ := state.holdFor(action.OrderID); idx == -1 {
			return effect.None[Action]() // nothing held; idempotent
		}
		return persist(state, Action{Kind: Released, TicketClass: state.TicketClass, OrderID: action.OrderID}, env)

	case Released:
		if idx, _ := state.holdFor(action.OrderID); idx != -1 {
			state.Holds = append(state.Holds[:idx], state.Holds[idx+1:]...)
		}
		return effect.None[Action]()

	case Commit:
		idx, qty := state.holdFor(action.OrderID)
		if idx == -1 {
			return effect.None[Action]() // nothing held for this order
		}
		return persist(state, Action{Kind: Committed, TicketClass: state.TicketClass, OrderID: action.OrderID, Quantity: qty}, env)

	case Committed:
		if idx, _ := state.holdFor(action.OrderID); idx != -1 {
			state.Holds = append(state.Holds[:idx], state.Holds[idx+1:]...)
		}
		state.Committed += action.Quantity
		return effect.None[Action]()

	case Restock:
		if action.Quantity <= 0 {
			return effect.None[Action]()
		}
		return persist(state, Action{Kind: Restocked, TicketClass: state.TicketClass, Quantity: action.Quantity}, env)

	case Restocked:
		state.Total += action.Quantity
		return effect.None[Action]()
	}

	return effect.None[Action]()
}

// StreamID builds the "inventory-<class>" convention.
func StreamID(ticketClass string) eventstore.StreamID {
	return eventstore.StreamID("inventory-" + ticketClass)
}

// persist appends evt unconditionally (no expected-version check): the
// hold/commit quantities above are already serialized per-class by the
// Store's single-writer reduce step, so a concurrency
// conflict on this stream can only mean an external writer, which this
// aggregate does not expect.
func persist(state *State, evt Action, env domain.Environment) effect.Effect[Action] {
	data, marshalErr := json.Marshal(evt)
	stream := StreamID(evt.TicketClass)

	storeOp := effect.EventStoreOp[Action]{
		Run: func() (any, error) {
			if marshalErr != nil {
				return nil, eventstore.SerializationErr("marshal inventory event", marshalErr)
			}
			_, err := env.Store.AppendEvents(context.Background(), stream, nil, []eventstore.SerializedEvent{
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
			return env.Bus.Publish(context.Background(), eventbus.EventsTopic("inventory"), eventstore.SerializedEvent{
				EventType: string(evt.Kind), Data: data,
			})
		},
		OnResult: func(err error) *Action { return nil },
	}

	return effect.Sequential(effect.EventStore(storeOp), effect.Publish(pubOp))
}

// Rehydrate replays a ticket class's stream into a fresh State.
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

// Decode unmarshals a serialized inventory event back into an Action.
func Decode(evt eventstore.SerializedEvent) (Action, error) {
	var a Action
	a.Kind = ActionKind(evt.EventType)
	if !Classifier.IsEvent(a) {
		return a, fmt.Errorf("inventory: %q is not a replayable event type", evt.EventType)
	}
	if err := json.Unmarshal(evt.Data, &a); err != nil {
		return a, eventstore.SerializationErr("unmarshal inventory event", err)
	}
	return a, nil
}
