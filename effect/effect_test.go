package effect

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneHasNoneKind(t *testing.T) {
	e := None[int]()
	assert.Equal(t, KindNone, e.Kind())
}

func TestFutureFeedsBackAction(t *testing.T) {
	e := Future(func() (*string, error) {
		v := "done"
		return &v, nil
	})
	require.Equal(t, KindFuture, e.Kind())
	v, err := e.FutureFn()()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "done", *v)
}

func TestFutureNoFeedbackOnNil(t *testing.T) {
	e := Future(func() (*string, error) { return nil, nil })
	v, err := e.FutureFn()()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDelayCarriesDurationAndAction(t *testing.T) {
	e := Delay(5*time.Second, 42)
	assert.Equal(t, KindDelay, e.Kind())
	assert.Equal(t, 5*time.Second, e.DelayDuration())
	assert.Equal(t, 42, e.DelayAction())
}

func TestChainIsSequentialOfTwo(t *testing.T) {
	e := Chain(None[int](), Delay(time.Millisecond, 1))
	require.Equal(t, KindSequential, e.Kind())
	require.Len(t, e.Children(), 2)
}

func TestMergeIsParallelOfTwo(t *testing.T) {
	e := Merge(None[int](), Delay(time.Millisecond, 1))
	require.Equal(t, KindParallel, e.Kind())
	require.Len(t, e.Children(), 2)
}

func TestEmptySequentialAndParallelHaveNoChildren(t *testing.T) {
	assert.Empty(t, Sequential[int]().Children())
	assert.Empty(t, Parallel[int]().Children())
}

func TestMapTransformsFutureAction(t *testing.T) {
	inner := Future(func() (*int, error) {
		v := 1
		return &v, nil
	})
	mapped := Map(inner, func(i int) string { return "x" })
	v, err := mapped.FutureFn()()
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "x", *v)
}

func TestMapRecursesIntoChildren(t *testing.T) {
	inner := Sequential(Delay(time.Millisecond, 1), Delay(time.Millisecond, 2))
	mapped := Map(inner, func(i int) int { return i * 10 })
	require.Len(t, mapped.Children(), 2)
	assert.Equal(t, 10, mapped.Children()[0].DelayAction())
	assert.Equal(t, 20, mapped.Children()[1].DelayAction())
}

func TestEventStoreOpOnResultCallback(t *testing.T) {
	ran := false
	op := EventStoreOp[string]{
		Run: func() (any, error) {
			ran = true
			return 7, nil
		},
		OnResult: func(result any, err error) *string {
			require.NoError(t, err)
			s := "ok"
			return &s
		},
	}
	e := EventStore(op)
	require.Equal(t, KindEventStore, e.Kind())
	res, err := e.StoreOp().Run()
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 7, res)
	out := e.StoreOp().OnResult(res, err)
	require.NotNil(t, out)
	assert.Equal(t, "ok", *out)
}

func TestPublishOpErrorCallback(t *testing.T) {
	wantErr := errors.New("boom")
	op := PublishOp[string]{
		Run: func() error { return wantErr },
		OnResult: func(err error) *string {
			if err == nil {
				return nil
			}
			s := "failed: " + err.Error()
			return &s
		},
	}
	e := Publish(op)
	err := e.PubOp().Run()
	require.ErrorIs(t, err, wantErr)
	out := e.PubOp().OnResult(err)
	require.NotNil(t, out)
	assert.Equal(t, "failed: boom", *out)
}
