package envport

import (
	"sync"
	"time"
)

// Scheduler schedules a one-shot wake-up after a duration, backing the
// effect.Delay variant. Production code uses RealScheduler;
// tests pair a VirtualScheduler with a FixedClock so Delay firings are
// driven by explicit Advance calls instead of wall-clock sleeps.
type Scheduler interface {
	After(d time.Duration) <-chan struct{}
}

// RealScheduler fires against the host's wall clock.
type RealScheduler struct{}

func (RealScheduler) After(d time.Duration) <-chan struct{} {
	gate := make(chan struct{}, 1)
	time.AfterFunc(d, func() { gate <- struct{}{} })
	return gate
}

type pendingTimer struct {
	deadline time.Time
	gate     chan struct{}
}

// VirtualScheduler never fires on its own; Fire must be called (typically
// right after FixedClock.Advance) to release any timer whose deadline has
// passed.
type VirtualScheduler struct {
	mu      sync.Mutex
	pending []*pendingTimer
}

func NewVirtualScheduler() *VirtualScheduler {
	return &VirtualScheduler{}
}

func (s *VirtualScheduler) After(d time.Duration) <-chan struct{} {
	gate := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	// There is no clock reference here by design: the scheduler only
	// knows relative offsets; Fire compares against whatever "now" the
	// caller supplies, keeping this type decoupled from a concrete Clock.
	s.pending = append(s.pending, &pendingTimer{deadline: time.Time{}.Add(d), gate: gate})
	return gate
}

// Fire releases every pending timer whose relative deadline has elapsed
// by elapsed (the cumulative duration the paired FixedClock has advanced
// by since the scheduler was created).
func (s *VirtualScheduler) Fire(elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.pending[:0]
	reference := time.Time{}.Add(elapsed)
	for _, t := range s.pending {
		if !reference.Before(t.deadline) {
			t.gate <- struct{}{}
		} else {
			remaining = append(remaining, t)
		}
	}
	s.pending = remaining
}
