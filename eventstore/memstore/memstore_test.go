package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakhimjonshokirov/eventkit/corerr"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

func v(i int64) *eventstore.Version {
	x := eventstore.Version(i)
	return &x
}

func TestAppendUnconditionalWhenNilExpectedVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	ver, err := s.AppendEvents(ctx, "order-1", nil, []eventstore.SerializedEvent{{EventType: "OrderPlaced.v1", Data: []byte("{}")}})
	require.NoError(t, err)
	assert.Equal(t, eventstore.Version(1), ver)
}

func TestAppendEmptyEventListFails(t *testing.T) {
	s := New()
	_, err := s.AppendEvents(context.Background(), "order-1", nil, nil)
	require.Error(t, err)
	assert.True(t, corerr.Of(err, corerr.KindEmptyInput))
}

func TestVersionMonotonicityNoGapsNoDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.AppendEvents(ctx, "order-1", nil, []eventstore.SerializedEvent{{EventType: "E"}})
		require.NoError(t, err)
	}

	events, err := s.LoadEvents(ctx, "order-1", nil)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, eventstore.Version(i+1), e.Version)
	}
}

func TestLoadEventsFromVersionExcludesUpToAndIncluding(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.AppendEvents(ctx, "order-1", nil, []eventstore.SerializedEvent{{EventType: "E"}})
		require.NoError(t, err)
	}

	events, err := s.LoadEvents(ctx, "order-1", v(1))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventstore.Version(2), events[0].Version)
	assert.Equal(t, eventstore.Version(3), events[1].Version)
}

func TestStreamIsolation(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.AppendEvents(ctx, "order-A", nil, []eventstore.SerializedEvent{{EventType: "E"}})
	require.NoError(t, err)

	eventsB, err := s.LoadEvents(ctx, "order-B", nil)
	require.NoError(t, err)
	assert.Empty(t, eventsB)
}

func TestOCCConflictExactlyOneWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Seed the stream to version 3.
	for i := 0; i < 3; i++ {
		_, err := s.AppendEvents(ctx, "order-1", nil, []eventstore.SerializedEvent{{EventType: "E"}})
		require.NoError(t, err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)
	versions := make([]eventstore.Version, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ver, err := s.AppendEvents(ctx, "order-1", v(3), []eventstore.SerializedEvent{{EventType: "E"}})
			results[i] = err
			versions[i] = ver
		}(i)
	}
	wg.Wait()

	successCount := 0
	for i, err := range results {
		if err == nil {
			successCount++
			assert.Equal(t, eventstore.Version(4), versions[i])
		} else {
			assert.True(t, corerr.Of(err, corerr.KindConcurrencyConflict))
		}
	}
	assert.Equal(t, 1, successCount)

	events, err := s.LoadEvents(ctx, "order-1", v(3))
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveSnapshot(ctx, "order-1", 2, []byte("snapshot-bytes")))

	snap, ok, err := s.LoadSnapshot(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, eventstore.Version(2), snap.Version)
	assert.Equal(t, []byte("snapshot-bytes"), snap.State)
}

func TestSnapshotOverwrittenByNewer(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SaveSnapshot(ctx, "order-1", 2, []byte("v2")))
	require.NoError(t, s.SaveSnapshot(ctx, "order-1", 5, []byte("v5")))

	snap, ok, err := s.LoadSnapshot(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, eventstore.Version(5), snap.Version)
	assert.Equal(t, []byte("v5"), snap.State)
}

func TestLoadSnapshotAbsentIsNotError(t *testing.T) {
	s := New()
	_, ok, err := s.LoadSnapshot(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}
