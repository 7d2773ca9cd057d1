package store

import "sync"

// inflight is a level-triggered broadcast primitive: a count plus a
// "done" gate that is closed whenever the count reaches zero and
// replaced the moment it goes positive again. Waiters never miss a
// quiescence because they always re-snapshot after a gate closes, so a
// child spawned between a waiter's check and its wait is still caught on
// the next drain cycle.
type inflight struct {
	mu   sync.Mutex
	n    int
	gate chan struct{}
}

// newInflight starts at zero, already quiesced.
func newInflight() *inflight {
	gate := make(chan struct{})
	close(gate)
	return &inflight{gate: gate}
}

// incr adjusts the count by delta (positive to record a spawn, negative
// to record a completion), opening a fresh gate on 0→positive and closing
// the current one on positive→0.
func (f *inflight) incr(delta int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 && delta > 0 {
		f.gate = make(chan struct{})
	}
	f.n += delta
	if f.n == 0 {
		close(f.gate)
	}
}

// decrGuard returns a func that decrements exactly once; deferring it
// right after incr(1) guarantees every spawned task decrements on exit
// regardless of control-flow path, panic included.
func (f *inflight) decrGuard() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		f.incr(-1)
	}
}

// snapshot returns the current count and the gate to wait on if nonzero.
func (f *inflight) snapshot() (int, <-chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n, f.gate
}
