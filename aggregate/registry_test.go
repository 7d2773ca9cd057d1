package aggregate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakhimjonshokirov/eventkit/domain"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventbus/membus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
	"github.com/rakhimjonshokirov/eventkit/eventstore/memstore"
)

func TestRegistryLoadsFreshAggregateOnFirstAccess(t *testing.T) {
	es := memstore.New()
	env := domain.Environment{Store: es, Bus: membus.New(), Clock: envport.SystemClock{}, IDs: &envport.SequentialGenerator{Prefix: "o"}}

	reg := New[order.State, order.Action, domain.Environment](
		es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, env,
	)

	s, err := reg.For(context.Background(), "ord-1")
	require.NoError(t, err)

	var got order.State
	s.State(func(st *order.State) { got = *st })
	assert.Equal(t, order.StatusNone, got.Status)
}

func TestRegistryReusesSameStoreAcrossCalls(t *testing.T) {
	es := memstore.New()
	env := domain.Environment{Store: es, Bus: membus.New(), Clock: envport.SystemClock{}, IDs: &envport.SequentialGenerator{Prefix: "o"}}

	reg := New[order.State, order.Action, domain.Environment](
		es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, env,
	)

	s1, err := reg.For(context.Background(), "ord-2")
	require.NoError(t, err)
	s2, err := reg.For(context.Background(), "ord-2")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

func TestRegistryRehydratesExistingStream(t *testing.T) {
	es := memstore.New()
	env := domain.Environment{Store: es, Bus: membus.New(), Clock: envport.SystemClock{}, IDs: &envport.SequentialGenerator{Prefix: "o"}}

	_, err := es.AppendEvents(context.Background(), order.StreamID("ord-3"), nil, []eventstore.SerializedEvent{
		{EventType: string(order.Placed), Data: []byte(`{"Kind":"order.placed","OrderID":"ord-3","CustomerID":"cust-3","TicketClass":"GA","Quantity":2,"UnitPriceCents":1000}`)},
	})
	require.NoError(t, err)

	reg := New[order.State, order.Action, domain.Environment](
		es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, env,
	)

	s, err := reg.For(context.Background(), "ord-3")
	require.NoError(t, err)

	var got order.State
	s.State(func(st *order.State) { got = *st })
	assert.Equal(t, order.StatusPlaced, got.Status)
	assert.Equal(t, "cust-3", got.CustomerID)
}

func TestEvictForcesReload(t *testing.T) {
	es := memstore.New()
	env := domain.Environment{Store: es, Bus: membus.New(), Clock: envport.SystemClock{}, IDs: &envport.SequentialGenerator{Prefix: "o"}}

	reg := New[order.State, order.Action, domain.Environment](
		es, order.StreamID, func() order.State { return order.State{} }, order.Rehydrate, order.Reducer{}, env,
	)

	s1, err := reg.For(context.Background(), "ord-4")
	require.NoError(t, err)
	reg.Evict("ord-4")
	s2, err := reg.For(context.Background(), "ord-4")
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
}
