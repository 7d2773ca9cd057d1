// Package effect implements a value-level side-effect algebra: effects are
// values returned by a reducer, never executed by it. The Store runtime
// (package store) is the only consumer of the Kind field; application
// code builds effects with the constructors below and composes them with
// Map, Chain and Merge.
package effect

import "time"

// Kind tags which variant an Effect[A] holds.
type Kind int

const (
	KindNone Kind = iota
	KindFuture
	KindDelay
	KindParallel
	KindSequential
	KindEventStore
	KindPublish
)

// Effect is polymorphic in the action type produced on completion.
// Exactly one of the Kind-tagged fields is meaningful for a given Kind;
// the rest are zero. Effect is a plain value; building one never runs
// anything.
type Effect[A any] struct {
	kind Kind

	future FutureFunc[A]

	delayFor    time.Duration
	delayAction A

	children []Effect[A]

	storeOp EventStoreOp[A]
	pubOp   PublishOp[A]
}

// FutureFunc is an asynchronous computation yielding an optional follow-up
// action. A nil returned *A means "no feedback".
type FutureFunc[A any] func() (*A, error)

// EventStoreOp describes one of AppendEvents/LoadEvents/SaveSnapshot/
// LoadSnapshot. Run performs the event-store call itself (a closure over
// the environment's event store handle); the executor in package store
// runs it and passes its result and error to OnResult. Run and
// OnResult are the call-then-translate-result pair every op carries.
type EventStoreOp[A any] struct {
	Run      func() (any, error)
	OnResult func(result any, err error) *A
}

// PublishOp describes a PublishEvent(op) effect: publish a
// serialized event to a topic via the event bus, with the same
// success/error callback pair as EventStoreOp.
type PublishOp[A any] struct {
	Run      func() error
	OnResult func(err error) *A
}

// None is the explicit no-op effect, equivalent to an empty effect list.
func None[A any]() Effect[A] { return Effect[A]{kind: KindNone} }

// Future wraps an asynchronous computation. When the FutureFunc returns a
// non-nil action, that action is fed back into the Store.
func Future[A any](f FutureFunc[A]) Effect[A] {
	return Effect[A]{kind: KindFuture, future: f}
}

// Delay dispatches action after d has elapsed on the runtime's scheduled
// time base. A zero duration still completes through the feedback path at
// the next scheduling tick rather than synchronously, preserving ordering.
func Delay[A any](d time.Duration, action A) Effect[A] {
	return Effect[A]{kind: KindDelay, delayFor: d, delayAction: action}
}

// Parallel executes children concurrently; the composite completes when
// all children complete. Each child's produced action is fed back
// independently. An empty Parallel completes immediately with
// no feedback.
func Parallel[A any](children ...Effect[A]) Effect[A] {
	return Effect[A]{kind: KindParallel, children: children}
}

// Sequential executes children in order; a child starts only after the
// previous child's effect subtree completes. An empty Sequential completes
// immediately with no feedback.
func Sequential[A any](children ...Effect[A]) Effect[A] {
	return Effect[A]{kind: KindSequential, children: children}
}

// EventStore wraps one EventStoreOp as an effect.
func EventStore[A any](op EventStoreOp[A]) Effect[A] {
	return Effect[A]{kind: KindEventStore, storeOp: op}
}

// Publish wraps one PublishOp as an effect.
func Publish[A any](op PublishOp[A]) Effect[A] {
	return Effect[A]{kind: KindPublish, pubOp: op}
}

// Chain is Sequential([e1, e2]).
func Chain[A any](e1, e2 Effect[A]) Effect[A] { return Sequential(e1, e2) }

// Merge is Parallel([e1, e2]).
func Merge[A any](e1, e2 Effect[A]) Effect[A] { return Parallel(e1, e2) }

// Kind exposes the tag so the executor in package store can switch on it
// without depending on unexported fields.
func (e Effect[A]) Kind() Kind { return e.kind }

// FutureFn returns the wrapped FutureFunc; only meaningful when Kind() ==
// KindFuture.
func (e Effect[A]) FutureFn() FutureFunc[A] { return e.future }

// DelayDuration and DelayAction are only meaningful when Kind() == KindDelay.
func (e Effect[A]) DelayDuration() time.Duration { return e.delayFor }
func (e Effect[A]) DelayAction() A               { return e.delayAction }

// Children is only meaningful when Kind() is KindParallel or KindSequential.
func (e Effect[A]) Children() []Effect[A] { return e.children }

// StoreOp is only meaningful when Kind() == KindEventStore.
func (e Effect[A]) StoreOp() EventStoreOp[A] { return e.storeOp }

// PubOp is only meaningful when Kind() == KindPublish.
func (e Effect[A]) PubOp() PublishOp[A] { return e.pubOp }

// Map lifts an Effect[A] over a transformation to Effect[B], rewriting every
// leaf's produced action through f.
func Map[A, B any](e Effect[A], f func(A) B) Effect[B] {
	switch e.kind {
	case KindNone:
		return None[B]()
	case KindFuture:
		inner := e.future
		return Future(func() (*B, error) {
			a, err := inner()
			if a == nil || err != nil {
				return nil, err
			}
			b := f(*a)
			return &b, nil
		})
	case KindDelay:
		return Delay(e.delayFor, f(e.delayAction))
	case KindParallel:
		return Parallel(mapChildren(e.children, f)...)
	case KindSequential:
		return Sequential(mapChildren(e.children, f)...)
	case KindEventStore:
		inner := e.storeOp
		return EventStore(EventStoreOp[B]{
			Run: inner.Run,
			OnResult: func(result any, err error) *B {
				a := inner.OnResult(result, err)
				if a == nil {
					return nil
				}
				b := f(*a)
				return &b
			},
		})
	case KindPublish:
		inner := e.pubOp
		return Publish(PublishOp[B]{
			Run: inner.Run,
			OnResult: func(err error) *B {
				a := inner.OnResult(err)
				if a == nil {
					return nil
				}
				b := f(*a)
				return &b
			},
		})
	default:
		return None[B]()
	}
}

func mapChildren[A, B any](children []Effect[A], f func(A) B) []Effect[B] {
	out := make([]Effect[B], len(children))
	for i, c := range children {
		out[i] = Map(c, f)
	}
	return out
}
