// Package teststore is the TestStore harness: it wraps a
// Store, replacing auto-feedback with a queue so a test can step through
// cascading actions with explicit assertions instead of racing real
// feedback delivery.
package teststore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rakhimjonshokirov/eventkit/corerr"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/reducer"
	"github.com/rakhimjonshokirov/eventkit/store"
)

// Reporter is the subset of *testing.T the harness needs to fail a test
// in place, so it never imports the testing package itself.
type Reporter interface {
	Helper()
	Fatalf(format string, args ...any)
}

// TestStore wraps a Store in Queued destination mode. Action must be
// comparable so Receive can match queue entries by value.
type TestStore[State, Action comparable, Environment any] struct {
	t     Reporter
	inner *store.Store[State, Action, Environment]

	mu    sync.Mutex
	queue []Action

	// Clock/Scheduler are populated by WithFixedClock so tests can drive
	// Effect.Delay deterministically; nil until then.
	Clock     *envport.FixedClock
	Scheduler *envport.VirtualScheduler
}

// Option configures a TestStore at construction.
type Option[State, Action comparable, Environment any] func(*TestStore[State, Action, Environment]) []store.Option[State, Action, Environment]

// WithFixedClock pairs a FixedClock with a VirtualScheduler and wires the
// scheduler into the underlying Store, returning the clock so the test
// can read it. Advancing the returned clock directly releases no Delay
// effects; TestStore.Advance moves the clock and fires the scheduler.
func WithFixedClock[State, Action comparable, Environment any](start time.Time) (Option[State, Action, Environment], *envport.FixedClock) {
	clock := envport.NewFixedClock(start)
	return func(ts *TestStore[State, Action, Environment]) []store.Option[State, Action, Environment] {
		sched := envport.NewVirtualScheduler()
		ts.Clock = clock
		ts.Scheduler = sched
		return []store.Option[State, Action, Environment]{store.WithScheduler[State, Action, Environment](sched)}
	}, clock
}

// New builds a TestStore around a fresh Store running in Queued mode.
func New[State, Action comparable, Environment any](
	t Reporter,
	initial State,
	red reducer.Reducer[State, Action, Environment],
	env Environment,
	opts ...Option[State, Action, Environment],
) *TestStore[State, Action, Environment] {
	ts := &TestStore[State, Action, Environment]{t: t}

	storeOpts := []store.Option[State, Action, Environment]{store.WithQueuedFeedback[State, Action, Environment](ts)}
	for _, opt := range opts {
		storeOpts = append(storeOpts, opt(ts)...)
	}

	ts.inner = store.New(initial, red, env, storeOpts...)
	return ts
}

// Push implements store.FeedbackQueue: produced actions land here instead
// of being auto-dispatched.
func (ts *TestStore[State, Action, Environment]) Push(action Action) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.queue = append(ts.queue, action)
}

// Advance moves the paired FixedClock forward and releases any Delay
// effects whose deadline has now passed. Panics if the harness was built
// without WithFixedClock.
func (ts *TestStore[State, Action, Environment]) Advance(d time.Duration) {
	if ts.Clock == nil || ts.Scheduler == nil {
		panic("teststore: Advance called without WithFixedClock")
	}
	ts.Clock.Advance(d)
	ts.Scheduler.Fire(ts.Clock.Elapsed())
}

// Send dispatches action and returns a Cascading handle, so the caller
// can ReceiveAfter it to wait out any async work before the produced
// action (if any) lands in the queue.
func (ts *TestStore[State, Action, Environment]) Send(ctx context.Context, action Action) (store.EffectHandle, error) {
	return ts.inner.SendCascading(ctx, action)
}

// State passes through to the inner Store.
func (ts *TestStore[State, Action, Environment]) State(fn func(*State)) {
	ts.inner.State(fn)
}

// PendingCount reports how many produced actions are waiting in the
// queue.
func (ts *TestStore[State, Action, Environment]) PendingCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.queue)
}

// PeekNext returns the head of the queue without consuming it.
func (ts *TestStore[State, Action, Environment]) PeekNext() (Action, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var zero Action
	if len(ts.queue) == 0 {
		return zero, false
	}
	return ts.queue[0], true
}

// Receive consumes the head of the queue, asserting it equals expected,
// then dispatches it to the inner Store, still in Queued mode. Fails the
// test via Reporter on any mismatch.
func (ts *TestStore[State, Action, Environment]) Receive(ctx context.Context, expected Action) error {
	ts.t.Helper()

	ts.mu.Lock()
	if len(ts.queue) == 0 {
		ts.mu.Unlock()
		err := corerr.New(corerr.KindHarnessMismatch, "no action produced, expected "+fmt.Sprint(expected))
		ts.t.Fatalf("%v", err)
		return err
	}
	got := ts.queue[0]
	ts.queue = ts.queue[1:]
	ts.mu.Unlock()

	if got != expected {
		err := corerr.New(corerr.KindHarnessMismatch, fmt.Sprintf("unexpected action: expected %v, got %v", expected, got))
		ts.t.Fatalf("%v", err)
		return err
	}

	_, sendErr := ts.inner.Send(ctx, got)
	return sendErr
}

// ReceiveInOrder consumes expected off the head of the queue one at a
// time, in the given order, asserting equality at each step before
// dispatching it to the inner Store. Fails the test via Reporter on the
// first mismatch, leaving the rest of the queue untouched.
func (ts *TestStore[State, Action, Environment]) ReceiveInOrder(ctx context.Context, expected []Action) error {
	ts.t.Helper()
	for _, want := range expected {
		if err := ts.Receive(ctx, want); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveAfter awaits handle and then
// Receives expected.
func (ts *TestStore[State, Action, Environment]) ReceiveAfter(ctx context.Context, expected Action, handle store.EffectHandle) error {
	ts.t.Helper()
	if err := handle.WaitWithTimeout(ctx, time.Second); err != nil {
		ts.t.Fatalf("%v", err)
		return err
	}
	return ts.Receive(ctx, expected)
}

// ReceiveUnordered matches each expected action somewhere in the queue
// (duplicates counted, not deduplicated) and consumes exactly those
// entries, in whatever order they were found, leaving the rest of the
// queue untouched.
func (ts *TestStore[State, Action, Environment]) ReceiveUnordered(ctx context.Context, expected []Action) error {
	ts.t.Helper()

	ts.mu.Lock()
	remaining := append([]Action(nil), ts.queue...)
	var matchedIdx []int
	for _, want := range expected {
		found := -1
		for i, got := range remaining {
			already := false
			for _, m := range matchedIdx {
				if m == i {
					already = true
					break
				}
			}
			if already {
				continue
			}
			if got == want {
				found = i
				break
			}
		}
		if found == -1 {
			ts.mu.Unlock()
			err := corerr.New(corerr.KindHarnessMismatch, fmt.Sprintf("action not found in pending queue: %v", want))
			ts.t.Fatalf("%v", err)
			return err
		}
		matchedIdx = append(matchedIdx, found)
	}

	var kept []Action
	matched := make([]Action, 0, len(matchedIdx))
	for i, a := range remaining {
		isMatch := false
		for _, m := range matchedIdx {
			if m == i {
				isMatch = true
				break
			}
		}
		if isMatch {
			matched = append(matched, a)
		} else {
			kept = append(kept, a)
		}
	}
	ts.queue = kept
	ts.mu.Unlock()

	for _, a := range matched {
		if _, err := ts.inner.Send(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// SkipPendingActions discards every queued action without asserting
// anything about them. Use sparingly; it defeats the harness's purpose
// of exhaustively accounting for produced actions.
func (ts *TestStore[State, Action, Environment]) SkipPendingActions() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.queue = nil
}

// AssertNoPendingActions fails the test (via Reporter) if the queue is
// non-empty, listing the unprocessed actions. Call this explicitly at the end of every test using the
// harness; Go has no destructors to run it implicitly.
func (ts *TestStore[State, Action, Environment]) AssertNoPendingActions() {
	ts.t.Helper()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.queue) > 0 {
		ts.t.Fatalf("%v", corerr.New(corerr.KindHarnessMismatch, fmt.Sprintf("unprocessed actions remain: %v", truncate(ts.queue))))
	}
}

// truncate keeps harness failure output readable by capping
// how many queued actions get rendered.
func truncate[Action any](actions []Action) []Action {
	const max = 10
	if len(actions) <= max {
		return actions
	}
	return actions[:max]
}
