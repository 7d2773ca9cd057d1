package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/aggregate"
	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventbus/membus"
	"github.com/rakhimjonshokirov/eventkit/eventstore/memstore"
	"github.com/rakhimjonshokirov/eventkit/saga"
	"github.com/rakhimjonshokirov/eventkit/teststore"
)

type harness struct {
	env   Environment
	sagas *Sagas
}

// newEnv wires a full Environment (event-sourced order/inventory/payment/
// reservation aggregates over a shared in-memory store and bus) without
// the saga layer itself, so a test can drive the checkout Reducer
// directly through a teststore.TestStore instead of through Sagas.
func newEnv(t *testing.T) Environment {
	t.Helper()
	es := memstore.New()
	bus := membus.New()
	domainEnv := domain.Environment{Store: es, Bus: bus, Clock: envport.SystemClock{}, IDs: &envport.SequentialGenerator{Prefix: "t"}}

	env := Environment{
		Domain: domainEnv,
		Orders: aggregate.New[order.State, order.Action, domain.Environment](
			es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, domainEnv),
		Inventory: aggregate.New[inventory.State, inventory.Action, domain.Environment](
			es, inventory.StreamID, func() inventory.State { return inventory.State{} }, inventory.Rehydrate, inventory.Reducer{}, domainEnv),
		Payments: aggregate.New[payment.State, payment.Action, domain.Environment](
			es, payment.StreamID, func() payment.State { return payment.State{} }, payment.Rehydrate, payment.Reducer{}, domainEnv),
		Reservations: aggregate.New[reservation.State, reservation.Action, domain.Environment](
			es, reservation.StreamID, func() reservation.State { return reservation.State{} }, reservation.Rehydrate, reservation.Reducer{}, domainEnv),
	}

	// Seed inventory stock directly through its own Store, the way an
	// operator would before sales open.
	invStore, err := env.Inventory.For(context.Background(), "GA")
	require.NoError(t, err)
	_, err = invStore.SendCascading(context.Background(), inventory.Action{Kind: inventory.Open, TicketClass: "GA", Quantity: 10})
	require.NoError(t, err)

	return env
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	env := newEnv(t)
	sagas := NewSagas(env)
	require.NoError(t, Subscribe(context.Background(), env.Domain.Bus, sagas, zap.NewNop()))
	return &harness{env: env, sagas: sagas}
}

func TestHappyPathReachesCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.sagas.For("ord-1")
	_, err := s.SendCascading(ctx, Action{
		Kind: Initiate, CorrelationID: saga.CorrelationID("corr-1"), OrderID: "ord-1",
		CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var got State
		s.State(func(st *State) { got = *st })
		return got.Status == saga.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	var orderState order.State
	s2, err := h.env.Orders.For(ctx, "ord-1")
	require.NoError(t, err)
	s2.State(func(st *order.State) { orderState = *st })
	assert.Equal(t, order.StatusConfirmed, orderState.Status)

	var payState payment.State
	s3, err := h.env.Payments.For(ctx, "ord-1")
	require.NoError(t, err)
	s3.State(func(st *payment.State) { payState = *st })
	assert.Equal(t, payment.StatusCaptured, payState.Status)

	var resvState reservation.State
	s4, err := h.env.Reservations.For(ctx, "ord-1")
	require.NoError(t, err)
	s4.State(func(st *reservation.State) { resvState = *st })
	assert.Equal(t, reservation.StatusConfirmed, resvState.Status)
}

func TestInsufficientInventoryFailsTheOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.sagas.For("ord-2")
	_, err := s.SendCascading(ctx, Action{
		Kind: Initiate, CorrelationID: saga.CorrelationID("corr-2"), OrderID: "ord-2",
		CustomerID: "cust-2", TicketClass: "GA", Quantity: 999, UnitPriceCents: 1500,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var got State
		s.State(func(st *State) { got = *st })
		return got.Status == saga.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	var orderState order.State
	s2, err := h.env.Orders.For(ctx, "ord-2")
	require.NoError(t, err)
	s2.State(func(st *order.State) { orderState = *st })
	assert.Equal(t, order.StatusFailed, orderState.Status)

	var resvState reservation.State
	s4, err := h.env.Reservations.For(ctx, "ord-2")
	require.NoError(t, err)
	s4.State(func(st *reservation.State) { resvState = *st })
	assert.Equal(t, reservation.StatusClosed, resvState.Status)
}

// TestInventoryHoldTimeoutFailsAndCompensates drives the Reducer directly
// through a TestStore instead of through Sagas/Subscribe, so the
// inventory aggregate's own InventoryHeld/InventoryRejected reply never
// arrives and the saga's Delay-based timeout is what resolves it.
func TestInventoryHoldTimeoutFailsAndCompensates(t *testing.T) {
	env := newEnv(t)
	opt, _ := teststore.WithFixedClock[State, Action, Environment](time.Unix(0, 0))
	ts := teststore.New[State, Action, Environment](t, State{}, Reducer{}, env, opt)
	ctx := context.Background()

	_, err := ts.Send(ctx, Action{
		Kind: Initiate, CorrelationID: saga.CorrelationID("corr-3"), OrderID: "ord-3",
		CustomerID: "cust-3", TicketClass: "GA", Quantity: 1, UnitPriceCents: 1000,
	})
	require.NoError(t, err)

	_, err = ts.Send(ctx, Action{Kind: OrderPlaced, EventID: "order.placed:ord-3", OrderID: "ord-3"})
	require.NoError(t, err)
	_, err = ts.Send(ctx, Action{Kind: ReservationCreated, EventID: "reservation.created:ord-3", OrderID: "ord-3"})
	require.NoError(t, err)

	ts.State(func(st *State) {
		assert.Equal(t, saga.StatusRunning, st.Status)
		assert.True(t, st.inventoryPending)
	})

	// No InventoryHeld/InventoryRejected ever arrives; advance past the
	// timeout instead.
	ts.Advance(inventoryHoldTimeout)

	require.Eventually(t, func() bool { return ts.PendingCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, ts.Receive(ctx, Action{Kind: InventoryTimeout, OrderID: "ord-3"}))
	ts.AssertNoPendingActions()

	ts.State(func(st *State) {
		assert.Equal(t, saga.StatusFailed, st.Status)
		assert.Equal(t, "inventory hold timed out", st.FailureReason)
		assert.False(t, st.inventoryPending)
	})
}
