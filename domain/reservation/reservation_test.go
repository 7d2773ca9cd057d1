package reservation

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
		IDs:   &envport.SequentialGenerator{Prefix: "resv"},
	}
}

func TestCreateThenConfirm(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	h, err := ts.Send(ctx, Action{Kind: Create, OrderID: "ord-1", TicketClass: "GA", Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Created, OrderID: "ord-1", TicketClass: "GA", Quantity: 2}, h))

	h, err = ts.Send(ctx, Action{Kind: Confirm, OrderID: "ord-1"})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Confirmed, OrderID: "ord-1"}, h))
	ts.AssertNoPendingActions()

	var got State
	ts.State(func(s *State) { got = *s })
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestCloseIsIdempotent(t *testing.T) {
	env := testEnv()
	ts := teststore.New[State, Action, domain.Environment](t, State{}, Reducer{}, env)
	ctx := context.Background()

	h, err := ts.Send(ctx, Action{Kind: Create, OrderID: "ord-2", TicketClass: "VIP", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Created, OrderID: "ord-2", TicketClass: "VIP", Quantity: 1}, h))

	h, err = ts.Send(ctx, Action{Kind: Close, OrderID: "ord-2", Reason: "payment declined"})
	require.NoError(t, err)
	require.NoError(t, ts.ReceiveAfter(ctx, Action{Kind: Closed, OrderID: "ord-2", Reason: "payment declined"}, h))

	_, err = ts.Send(ctx, Action{Kind: Close, OrderID: "ord-2", Reason: "ignored"})
	require.NoError(t, err)
	ts.AssertNoPendingActions()

	var got State
	ts.State(func(s *State) { got = *s })
	assert.Equal(t, StatusClosed, got.Status)
	assert.Equal(t, "payment declined", got.Reason)
}
