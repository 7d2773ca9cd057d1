package store

import (
	"context"
	"time"

	"github.com/rakhimjonshokirov/eventkit/corerr"
)

// HandleKind distinguishes the two in-flight granularities a caller can
// wait on.
type HandleKind int

const (
	// Direct counts only the effects spawned directly by the send that
	// produced this handle; a follow-up action's own effects do not
	// extend it.
	Direct HandleKind = iota
	// Cascading additionally aggregates every effect spawned
	// transitively by follow-up actions descending from the same send.
	Cascading
)

// EffectHandle observes the completion of some set of in-flight effects.
type EffectHandle struct {
	kind HandleKind
	inf  *inflight
}

// Completed returns a handle that is immediately ready, for callers that
// need to chain against a handle but have nothing outstanding.
func Completed() EffectHandle {
	return EffectHandle{kind: Direct, inf: newInflight()}
}

// Kind reports which granularity this handle observes.
func (h EffectHandle) Kind() HandleKind { return h.kind }

// IsComplete reports whether every effect this handle observes has
// finished, without blocking.
func (h EffectHandle) IsComplete() bool {
	n, _ := h.inf.snapshot()
	return n == 0
}

// WaitWithTimeout blocks until quiescence or timeout elapses, looping
// across newly spawned children the way Cascading handles require.
func (h EffectHandle) WaitWithTimeout(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		n, gate := h.inf.snapshot()
		if n == 0 {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return corerr.Timeout("effect handle wait timed out", timeout, n)
		}
		timer := time.NewTimer(remaining)
		select {
		case <-gate:
			timer.Stop()
			// Re-snapshot: new children may have appeared between the
			// gate closing and us observing it.
		case <-timer.C:
			n, _ := h.inf.snapshot()
			return corerr.Timeout("effect handle wait timed out", timeout, n)
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
