package membus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

func TestPublishDeliversToEachGroup(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chA, err := b.Subscribe(ctx, "group-a", []string{"order-events"})
	require.NoError(t, err)
	chB, err := b.Subscribe(ctx, "group-b", []string{"order-events"})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "order-events", eventstore.SerializedEvent{EventType: "OrderPlaced.v1"}))

	select {
	case res := <-chA:
		require.NoError(t, res.Err)
		assert.Equal(t, "OrderPlaced.v1", res.Message.Event.EventType)
	case <-time.After(time.Second):
		t.Fatal("group-a did not receive the event")
	}

	select {
	case res := <-chB:
		require.NoError(t, res.Err)
		assert.Equal(t, "OrderPlaced.v1", res.Message.Event.EventType)
	case <-time.After(time.Second):
		t.Fatal("group-b did not receive the event")
	}
}

func TestPublishRoundRobinsWithinAGroup(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := b.Subscribe(ctx, "workers", []string{"t"})
	require.NoError(t, err)
	ch2, err := b.Subscribe(ctx, "workers", []string{"t"})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "t", eventstore.SerializedEvent{EventType: "A"}))
	require.NoError(t, b.Publish(ctx, "t", eventstore.SerializedEvent{EventType: "B"}))

	var got []string
	select {
	case r := <-ch1:
		got = append(got, r.Message.Event.EventType)
	case <-time.After(100 * time.Millisecond):
	}
	select {
	case r := <-ch2:
		got = append(got, r.Message.Event.EventType)
	case <-time.After(100 * time.Millisecond):
	}

	assert.ElementsMatch(t, []string{"A", "B"}, got)
}

func TestSubscribeDefaultGroupFromSortedTopics(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch1, err := b.Subscribe(ctx, "", []string{"b", "a"})
	require.NoError(t, err)
	ch2, err := b.Subscribe(ctx, "", []string{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "a", eventstore.SerializedEvent{EventType: "E"}))

	// Both subscriptions collapse into the same default group, so the
	// single publish is shared between them (exactly one receives it),
	// not broadcast to both.
	received := 0
	select {
	case <-ch1:
		received++
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-ch2:
		received++
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, received)
}

func TestDeadSubscriberReapedOnPublish(t *testing.T) {
	b := New()
	liveCtx, liveCancel := context.WithCancel(context.Background())
	defer liveCancel()
	deadCtx, deadCancel := context.WithCancel(context.Background())

	_, err := b.Subscribe(deadCtx, "g", []string{"t"})
	require.NoError(t, err)
	chLive, err := b.Subscribe(liveCtx, "g", []string{"t"})
	require.NoError(t, err)

	deadCancel()
	time.Sleep(10 * time.Millisecond) // let the reap goroutine close the dead channel

	require.NoError(t, b.Publish(context.Background(), "t", eventstore.SerializedEvent{EventType: "E"}))

	select {
	case res := <-chLive:
		assert.Equal(t, "E", res.Message.Event.EventType)
	case <-time.After(time.Second):
		t.Fatal("live subscriber did not receive the event after the dead one was reaped")
	}
}
