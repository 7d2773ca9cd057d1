package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/effect"
)

// execEffect interprets one Effect tree, spawning async tasks for every
// leaf. direct and cascading are both bumped for every leaf descended
// from ln, whether spawned directly here or nested inside a
// Parallel/Sequential; only a follow-up action crossing back through
// feedback starts a new direct counter.
func (s *Store[State, Action, Environment]) execEffect(ctx context.Context, eff effect.Effect[Action], ln *lineage) {
	switch eff.Kind() {
	case effect.KindNone:
		return

	case effect.KindFuture:
		s.spawn(ln, func() {
			a, err := eff.FutureFn()()
			if err != nil {
				s.log.Warn("future effect returned an error", zap.Error(err))
			}
			if a != nil {
				s.feedback(ctx, *a, ln)
			}
		})

	case effect.KindDelay:
		s.spawn(ln, func() {
			gate := s.scheduler.After(eff.DelayDuration())
			select {
			case <-gate:
				s.feedback(ctx, eff.DelayAction(), ln)
			case <-ctx.Done():
			}
		})

	case effect.KindParallel:
		for _, child := range eff.Children() {
			s.execEffect(ctx, child, ln)
		}

	case effect.KindSequential:
		s.spawn(ln, func() {
			s.runSequential(ctx, eff.Children(), ln)
		})

	case effect.KindEventStore:
		s.spawn(ln, func() {
			op := eff.StoreOp()
			result, err := op.Run()
			if err != nil {
				s.log.Warn("event store effect returned an error", zap.Error(err))
			}
			if a := op.OnResult(result, err); a != nil {
				s.feedback(ctx, *a, ln)
			}
		})

	case effect.KindPublish:
		s.spawn(ln, func() {
			op := eff.PubOp()
			err := op.Run()
			if err != nil {
				s.log.Warn("publish effect returned an error", zap.Error(err))
			}
			if a := op.OnResult(err); a != nil {
				s.feedback(ctx, *a, ln)
			}
		})
	}
}

// spawn runs fn on its own goroutine, bumping direct/cascading/global on
// entry and guaranteeing exactly one matching decrement on exit, panic
// included.
func (s *Store[State, Action, Environment]) spawn(ln *lineage, fn func()) {
	ln.direct.incr(1)
	ln.cascading.incr(1)
	ln.global.incr(1)

	go func() {
		decrDirect := ln.direct.decrGuard()
		decrCascading := ln.cascading.decrGuard()
		decrGlobal := ln.global.decrGuard()
		defer decrDirect()
		defer decrCascading()
		defer decrGlobal()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("effect task panicked", zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

// runSequential executes children in order, each child's full subtree
// (which may itself fan out concurrently) completing before the next
// starts. Cancellation stops after the current child.
func (s *Store[State, Action, Environment]) runSequential(ctx context.Context, children []effect.Effect[Action], ln *lineage) {
	for _, child := range children {
		if ctx.Err() != nil {
			return
		}
		step := &lineage{direct: newInflight(), cascading: ln.cascading, global: ln.global}
		s.execEffect(ctx, child, step)
		waitInflightOrCancel(ctx, step.direct)
	}
}

func waitInflightOrCancel(ctx context.Context, inf *inflight) {
	for {
		n, gate := inf.snapshot()
		if n == 0 {
			return
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return
		}
	}
}
