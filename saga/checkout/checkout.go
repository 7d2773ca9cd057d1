// Package checkout is the saga coordinating a ticket purchase across the
// order, inventory, payment and reservation aggregates: an ordinary
// Reducer whose State is a small workflow machine, driven by
// events relayed from those four aggregates and answering with commands
// sent back to them, built on a generic CompensationStack (package saga)
// instead of a hand-wired chain of compensation calls. Kept split one
// file per step: initiate.go, reserve.go, pay.go, complete.go,
// compensate.go.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/rakhimjonshokirov/eventkit/aggregate"
	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/saga"
	"github.com/rakhimjonshokirov/eventkit/store"
)

// inventoryHoldTimeout bounds how long the saga waits for InventoryHeld
// or InventoryRejected once the hold command is sent, before giving up
// and compensating on its own.
const inventoryHoldTimeout = 30 * time.Second

// ActionKind tags the checkout saga's command/event union.
type ActionKind string

const (
	// Initiate starts a new checkout; every other variant reports an
	// event relayed from one of the four aggregates.
	Initiate ActionKind = "checkout.initiate"

	OrderPlaced        ActionKind = "checkout.order_placed"
	ReservationCreated ActionKind = "checkout.reservation_created"
	InventoryHeld      ActionKind = "checkout.inventory_held"
	InventoryRejected  ActionKind = "checkout.inventory_rejected"

	// InventoryTimeout is produced internally by a Delay effect, not
	// relayed from any aggregate; it carries no EventID and so never
	// passes through the duplicate-event guard in Reduce.
	InventoryTimeout ActionKind = "checkout.inventory_timeout"

	PaymentAuthorized    ActionKind = "checkout.payment_authorized"
	PaymentDeclined      ActionKind = "checkout.payment_declined"
	PaymentCaptured      ActionKind = "checkout.payment_captured"
	OrderConfirmed       ActionKind = "checkout.order_confirmed"
	ReservationConfirmed ActionKind = "checkout.reservation_confirmed"
)

// Action is the checkout saga's command/event union. EventID is set on
// every relayed event and checked against State's duplicate tracker;
// it is empty on Initiate.
type Action struct {
	Kind           ActionKind
	EventID        string
	CorrelationID  saga.CorrelationID
	OrderID        string
	CustomerID     string
	TicketClass    string
	Quantity       int
	UnitPriceCents int64
	Reason         string
}

// State is the checkout workflow's projection: status plus which of the
// parallel first-round events (order placed, reservation created) have
// landed, plus the compensation stack accumulated as steps complete.
type State struct {
	CorrelationID  saga.CorrelationID
	OrderID        string
	Status         saga.Status
	CustomerID     string
	TicketClass    string
	Quantity       int
	UnitPriceCents int64
	FailureReason  string

	orderPlaced        bool
	reservationCreated bool
	inventoryPending   bool // true from the hold request until Held/Rejected/timeout

	compensation saga.CompensationStack[compensationCommand]
	seen         *saga.SeenEvents
}

// compensationCommand names which aggregate command undoes a completed
// step; Unwind replays these in reverse order (package saga).
type compensationCommand struct {
	target      string // "inventory" | "payment"
	orderID     string
	ticketClass string
}

// Environment holds a Registry per aggregate this saga coordinates, each
// lazily loading and caching the Store for a given aggregate id (package
// aggregate), plus the shared domain.Environment every aggregate Reducer
// closes over.
type Environment struct {
	Domain domain.Environment

	Orders       *aggregate.Registry[order.State, order.Action, domain.Environment]
	Inventory    *aggregate.Registry[inventory.State, inventory.Action, domain.Environment]
	Payments     *aggregate.Registry[payment.State, payment.Action, domain.Environment]
	Reservations *aggregate.Registry[reservation.State, reservation.Action, domain.Environment]
}

// Sagas is a keyed cache of per-order saga Stores, the coordination
// counterpart to package aggregate's Registry. Unlike a Registry it
// never rehydrates from the event store: a checkout's own workflow
// position is not itself a durable aggregate. Durability lives in the
// four aggregates it drives, which are event-sourced and safe to resume
// from after a restart loses the in-flight saga state.
type Sagas struct {
	mu     sync.Mutex
	stores map[string]*store.Store[State, Action, Environment]
	env    Environment
}

// NewSagas builds an empty cache around env.
func NewSagas(env Environment) *Sagas {
	return &Sagas{stores: make(map[string]*store.Store[State, Action, Environment]), env: env}
}

// For returns the live Store for orderID, creating a fresh one on first
// access.
func (s *Sagas) For(orderID string) *store.Store[State, Action, Environment] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.stores[orderID]; ok {
		return existing
	}
	created := store.New(State{}, Reducer{}, s.env)
	s.stores[orderID] = created
	return created
}

// Reducer implements reducer.Reducer[State, Action, Environment]. Reduce
// itself only handles duplicate detection and dispatch; each step's logic
// lives in its own file (initiate.go, reserve.go, pay.go, complete.go,
// compensate.go).
type Reducer struct{}

func (Reducer) Reduce(state *State, action Action, env Environment) effect.Effect[Action] {
	if state.seen == nil {
		state.seen = saga.NewSeenEvents()
	}

	if action.EventID != "" {
		if state.seen.Contains(action.EventID) {
			return effect.None[Action]() // at-least-once duplicate, already past this step
		}
		state.seen.Mark(action.EventID)
	}

	switch action.Kind {
	case Initiate:
		return state.handleInitiate(env, action)

	case OrderPlaced:
		state.orderPlaced = true
		return state.maybeHoldInventory(env)

	case ReservationCreated:
		state.reservationCreated = true
		return state.maybeHoldInventory(env)

	case InventoryHeld:
		state.inventoryPending = false
		return state.handleInventoryHeld(env)

	case InventoryRejected:
		state.inventoryPending = false
		return state.fail(env, "inventory unavailable")

	case InventoryTimeout:
		if !state.inventoryPending {
			return effect.None[Action]() // already resolved before the timer fired
		}
		state.inventoryPending = false
		return state.fail(env, "inventory hold timed out")

	case PaymentAuthorized:
		return state.handlePaymentAuthorized(env)

	case PaymentDeclined:
		return state.fail(env, "payment declined")

	case PaymentCaptured:
		return state.handlePaymentCaptured(env)

	case OrderConfirmed, ReservationConfirmed:
		return state.handleConfirmed()
	}

	return effect.None[Action]()
}

// bgCtx is used by the fire-and-forget Future helpers below: the saga
// reacts to events relayed back asynchronously through Subscribe rather
// than to these commands' own results, so there is no caller context to
// thread through.
var bgCtx = context.Background()

// sendOrder, sendInventory, sendPayment and sendReservation look up the
// target aggregate's Store via its Registry and fire a command into it
// without waiting for the result; the aggregate's own event, once
// persisted and published, is relayed back into this saga by Subscribe
// (checkout/subscribe.go) as a tagged Action, never by this Future's
// return value.
func sendOrder(env Environment, id string, cmd order.Action) effect.Effect[Action] {
	return effect.Future(func() (*Action, error) {
		s, err := env.Orders.For(bgCtx, id)
		if err != nil {
			return nil, err
		}
		_, err = s.SendCascading(bgCtx, cmd)
		return nil, err
	})
}

func sendInventory(env Environment, id string, cmd inventory.Action) effect.Effect[Action] {
	return effect.Future(func() (*Action, error) {
		s, err := env.Inventory.For(bgCtx, id)
		if err != nil {
			return nil, err
		}
		_, err = s.SendCascading(bgCtx, cmd)
		return nil, err
	})
}

func sendPayment(env Environment, id string, cmd payment.Action) effect.Effect[Action] {
	return effect.Future(func() (*Action, error) {
		s, err := env.Payments.For(bgCtx, id)
		if err != nil {
			return nil, err
		}
		_, err = s.SendCascading(bgCtx, cmd)
		return nil, err
	})
}

func sendReservation(env Environment, id string, cmd reservation.Action) effect.Effect[Action] {
	return effect.Future(func() (*Action, error) {
		s, err := env.Reservations.For(bgCtx, id)
		if err != nil {
			return nil, err
		}
		_, err = s.SendCascading(bgCtx, cmd)
		return nil, err
	})
}
