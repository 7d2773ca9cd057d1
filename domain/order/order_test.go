package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventbus/membus"
	"github.com/rakhimjonshokirov/eventkit/eventstore/memstore"
	"github.com/rakhimjonshokirov/eventkit/teststore"
)

func testEnv() domain.Environment {
	return domain.Environment{
		Store: memstore.New(),
		Bus:   membus.New(),
		Clock: envport.SystemClock{},
		IDs:   &envport.SequentialGenerator{Prefix: "order"},
	}
}

func TestPlaceOrderPersistsAndAppliesPlaced(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	handle, err := ts.Send(ctx, Action{Kind: Place, OrderID: "ord-1", CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500})
	require.NoError(t, err)

	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Placed, OrderID: "ord-1", CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500}, handle))
	ts.AssertNoPendingActions()

	var got State
	ts.State(func(s *State) { got = *s })
	assert.Equal(t, StatusPlaced, got.Status)
	assert.Equal(t, 2, got.Quantity)
}

func TestPlaceOrderTwiceIsNoop(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	handle, err := ts.Send(ctx, Action{Kind: Place, OrderID: "ord-1", CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Placed, OrderID: "ord-1", CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500}, handle))

	_, err = ts.Send(ctx, Action{Kind: Place, OrderID: "ord-1", CustomerID: "cust-1", TicketClass: "GA", Quantity: 2, UnitPriceCents: 1500})
	require.NoError(t, err)
	ts.AssertNoPendingActions()
}

func TestCancelTwiceIsIdempotentAfterTerminal(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	handle, err := ts.Send(ctx, Action{Kind: Place, OrderID: "ord-2", CustomerID: "cust-2", TicketClass: "VIP", Quantity: 1, UnitPriceCents: 9000})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Placed, OrderID: "ord-2", CustomerID: "cust-2", TicketClass: "VIP", Quantity: 1, UnitPriceCents: 9000}, handle))

	handle, err = ts.Send(ctx, Action{Kind: Cancel, OrderID: "ord-2"})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Cancelled, OrderID: "ord-2"}, handle))

	_, err = ts.Send(ctx, Action{Kind: Cancel, OrderID: "ord-2"})
	require.NoError(t, err)
	ts.AssertNoPendingActions()

	var got State
	ts.State(func(s *State) { got = *s })
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestRehydrateReplaysStoredEvents(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	handle, err := ts.Send(ctx, Action{Kind: Place, OrderID: "ord-3", CustomerID: "cust-3", TicketClass: "GA", Quantity: 4, UnitPriceCents: 1000})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Placed, OrderID: "ord-3", CustomerID: "cust-3", TicketClass: "GA", Quantity: 4, UnitPriceCents: 1000}, handle))

	events, err := env.Store.LoadEvents(ctx, StreamID("ord-3"), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	state, err := Rehydrate(events)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, state.Status)
	assert.Equal(t, "cust-3", state.CustomerID)
}
