// Package store is the Store runtime: it owns state, the
// reducer and the environment, executes effects asynchronously, and feeds
// produced actions back into itself. Generic over any State/Action/
// Environment triple rather than tied to one particular aggregate, with
// the async effect machinery a purely synchronous load-apply-save loop
// would never need.
package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/corerr"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/reducer"
)

// Destination selects how actions produced by effects are delivered back
// into the Store.
type Destination int

const (
	// Auto re-enters the Store via an ordinary send, the production
	// behavior.
	Auto Destination = iota
	// Queued appends produced actions to a FeedbackQueue instead, the
	// behavior package teststore relies on.
	Queued
)

// FeedbackQueue receives actions a Store running in Queued mode would
// otherwise auto-dispatch.
type FeedbackQueue[Action any] interface {
	Push(action Action)
}

// Metrics are the observability counters tracking shutdown progress and
// rejected sends.
type Metrics struct {
	ShutdownsInitiated atomic.Int64
	ShutdownsCompleted atomic.Int64
	ShutdownsTimedOut  atomic.Int64
	ActionsRejected    atomic.Int64
}

// lineage threads the three in-flight counters of a single top-level send
// through every effect it transitively spawns: direct (this send only),
// cascading (this send plus every descendant), and global (store-wide,
// used only for shutdown draining).
type lineage struct {
	direct    *inflight
	cascading *inflight
	global    *inflight
}

// watcher backs SendAndWaitFor: a one-shot subscription over produced
// (feedback) actions.
type watcher[Action any] struct {
	pred func(Action) bool
	ch   chan Action
}

// Store runs one Reducer against one State/Environment.
type Store[State, Action, Environment any] struct {
	mu    sync.RWMutex
	state State
	red   reducer.Reducer[State, Action, Environment]
	env   Environment

	destination   Destination
	feedbackQueue FeedbackQueue[Action]
	scheduler     envport.Scheduler

	global *inflight

	draining atomic.Bool
	poisoned atomic.Bool

	watchersMu sync.Mutex
	watchers   []*watcher[Action]

	log     *zap.Logger
	Metrics Metrics
}

// Option configures a Store at construction time.
type Option[State, Action, Environment any] func(*Store[State, Action, Environment])

// WithLogger overrides the default no-op logger.
func WithLogger[State, Action, Environment any](log *zap.Logger) Option[State, Action, Environment] {
	return func(s *Store[State, Action, Environment]) { s.log = log }
}

// WithScheduler overrides the default RealScheduler, the hook package
// teststore uses to pair a VirtualScheduler with its FixedClock.
func WithScheduler[State, Action, Environment any](sched envport.Scheduler) Option[State, Action, Environment] {
	return func(s *Store[State, Action, Environment]) { s.scheduler = sched }
}

// WithQueuedFeedback switches the Store into Queued destination mode,
// delivering produced actions to q instead of auto-dispatching them. This
// is how package teststore builds its harness around a plain Store.
func WithQueuedFeedback[State, Action, Environment any](q FeedbackQueue[Action]) Option[State, Action, Environment] {
	return func(s *Store[State, Action, Environment]) {
		s.destination = Queued
		s.feedbackQueue = q
	}
}

// New constructs a Store in Auto destination mode with a RealScheduler,
// ready to send actions into.
func New[State, Action, Environment any](
	initial State,
	red reducer.Reducer[State, Action, Environment],
	env Environment,
	opts ...Option[State, Action, Environment],
) *Store[State, Action, Environment] {
	s := &Store[State, Action, Environment]{
		state:     initial,
		red:       red,
		env:       env,
		scheduler: envport.RealScheduler{},
		global:    newInflight(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State takes a read lock and runs fn against a pointer to the current
// state.
func (s *Store[State, Action, Environment]) State(fn func(*State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.state)
}

// Send dispatches action and returns a Direct handle.
func (s *Store[State, Action, Environment]) Send(ctx context.Context, action Action) (EffectHandle, error) {
	return s.send(ctx, action, Direct)
}

// SendCascading dispatches action and returns a Cascading handle that
// also tracks every action produced transitively as a consequence.
func (s *Store[State, Action, Environment]) SendCascading(ctx context.Context, action Action) (EffectHandle, error) {
	return s.send(ctx, action, Cascading)
}

func (s *Store[State, Action, Environment]) send(ctx context.Context, action Action, kind HandleKind) (EffectHandle, error) {
	if s.poisoned.Load() {
		return EffectHandle{}, corerr.New(corerr.KindPoisoned, "store is poisoned by a prior reducer panic")
	}
	if s.draining.Load() {
		s.Metrics.ActionsRejected.Add(1)
		return EffectHandle{}, corerr.New(corerr.KindShutdownRejected, "store is draining, action rejected")
	}

	ln := &lineage{direct: newInflight(), cascading: newInflight(), global: s.global}
	s.dispatch(ctx, action, ln)

	if kind == Direct {
		return EffectHandle{kind: Direct, inf: ln.direct}, nil
	}
	return EffectHandle{kind: Cascading, inf: ln.cascading}, nil
}

// SendAndWaitFor sends action and blocks for the first feedback action
// satisfying predicate, or until timeout elapses.
func (s *Store[State, Action, Environment]) SendAndWaitFor(
	ctx context.Context,
	action Action,
	predicate func(Action) bool,
	timeout time.Duration,
) (Action, error) {
	var zero Action
	w := &watcher[Action]{pred: predicate, ch: make(chan Action, 1)}
	s.addWatcher(w)
	defer s.removeWatcher(w)

	if _, err := s.Send(ctx, action); err != nil {
		return zero, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case a := <-w.ch:
		return a, nil
	case <-timer.C:
		n, _ := s.global.snapshot()
		return zero, corerr.Timeout("send_and_wait_for timed out", timeout, n)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Store[State, Action, Environment]) addWatcher(w *watcher[Action]) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	s.watchers = append(s.watchers, w)
}

func (s *Store[State, Action, Environment]) removeWatcher(w *watcher[Action]) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	for i, x := range s.watchers {
		if x == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			return
		}
	}
}

func (s *Store[State, Action, Environment]) notifyWatchers(action Action) {
	s.watchersMu.Lock()
	var matched []*watcher[Action]
	remaining := s.watchers[:0]
	for _, w := range s.watchers {
		if w.pred(action) {
			matched = append(matched, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	s.watchers = remaining
	s.watchersMu.Unlock()

	for _, w := range matched {
		w.ch <- action
	}
}

// dispatch runs one reduce step and executes the resulting effect tree.
// A reducer panic poisons the Store instead of propagating, since it runs inside whichever
// goroutine happened to call Send.
func (s *Store[State, Action, Environment]) dispatch(ctx context.Context, action Action, ln *lineage) {
	var eff effect.Effect[Action]
	poisoning := func() (panicked bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				s.poisoned.Store(true)
				s.log.Error("reducer panicked, store poisoned", zap.Any("panic", r))
				panicked = true
			}
		}()
		eff = s.red.Reduce(&s.state, action, s.env)
		return false
	}()
	if poisoning {
		return
	}
	s.execEffect(ctx, eff, ln)
}

// feedback delivers a produced action according to destination: Auto
// re-enters dispatch (a fresh direct counter, the same cascading/global
// lineage), Queued hands it to the harness's queue untouched.
func (s *Store[State, Action, Environment]) feedback(ctx context.Context, action Action, ln *lineage) {
	s.notifyWatchers(action)
	switch s.destination {
	case Auto:
		child := &lineage{direct: newInflight(), cascading: ln.cascading, global: ln.global}
		s.dispatch(ctx, action, child)
	case Queued:
		if q := s.feedbackQueue; q != nil {
			q.Push(action)
		}
	}
}

// Shutdown transitions the Store into a draining state, rejecting new
// Send calls, then waits for global in-flight effects to quiesce or
// drainTimeout to elapse.
func (s *Store[State, Action, Environment]) Shutdown(ctx context.Context, drainTimeout time.Duration) error {
	s.Metrics.ShutdownsInitiated.Add(1)
	s.draining.Store(true)

	deadline := time.Now().Add(drainTimeout)
	for {
		n, gate := s.global.snapshot()
		if n == 0 {
			s.Metrics.ShutdownsCompleted.Add(1)
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			s.Metrics.ShutdownsTimedOut.Add(1)
			return corerr.Timeout("shutdown drain timed out", drainTimeout, n)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-gate:
			timer.Stop()
		case <-timer.C:
			n, _ := s.global.snapshot()
			s.Metrics.ShutdownsTimedOut.Add(1)
			return corerr.Timeout("shutdown drain timed out", drainTimeout, n)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
