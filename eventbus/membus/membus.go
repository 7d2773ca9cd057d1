// Package membus is the in-memory twin of the event bus: a
// per-topic broadcast fanout where publishers and subscribers share a
// lock, and dead subscribers (their context cancelled) are reaped lazily
// on publish.
package membus

import (
	"context"
	"sync"

	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// DefaultBufferSize is the bounded channel size each subscription gets.
// When full, Publish blocks the source rather than dropping.
const DefaultBufferSize = 64

type subscriber struct {
	ctx  context.Context
	ch   chan eventbus.Result
	dead bool
}

// Bus is the in-memory Bus implementation.
type Bus struct {
	mu         sync.Mutex
	bufferSize int

	// groups[topic][group] is the list of subscribers sharing load for
	// that group on that topic; a publish round-robins within each
	// group and broadcasts across groups.
	groups map[string]map[string][]*subscriber
	rr     map[string]map[string]int
}

// New returns an empty in-memory bus with the default buffer size.
func New() *Bus {
	return NewWithBufferSize(DefaultBufferSize)
}

// NewWithBufferSize lets callers tune the bounded channel size.
func NewWithBufferSize(size int) *Bus {
	return &Bus{
		bufferSize: size,
		groups:     make(map[string]map[string][]*subscriber),
		rr:         make(map[string]map[string]int),
	}
}

var _ eventbus.Bus = (*Bus)(nil)

func (b *Bus) Subscribe(ctx context.Context, group string, topics []string) (<-chan eventbus.Result, error) {
	if group == "" {
		group = eventbus.GroupID(topics)
	}

	sub := &subscriber{ctx: ctx, ch: make(chan eventbus.Result, b.bufferSize)}

	b.mu.Lock()
	for _, topic := range topics {
		if b.groups[topic] == nil {
			b.groups[topic] = make(map[string][]*subscriber)
		}
		b.groups[topic][group] = append(b.groups[topic][group], sub)
	}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		sub.dead = true
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch, nil
}

// Publish delivers event to one member of every consumer group subscribed
// to topic, round-robining within a group so the group shares load rather
// than each member getting a full copy. A full subscriber
// channel blocks Publish instead of dropping the
// message.
func (b *Bus) Publish(ctx context.Context, topic string, event eventstore.SerializedEvent) error {
	b.mu.Lock()
	groups := b.groups[topic]
	targets := make([]*subscriber, 0, len(groups))
	for group, members := range groups {
		live := reap(members)
		groups[group] = live
		if len(live) == 0 {
			continue
		}
		idx := b.rr[topic][group] % len(live)
		if b.rr[topic] == nil {
			b.rr[topic] = make(map[string]int)
		}
		b.rr[topic][group] = idx + 1
		targets = append(targets, live[idx])
	}
	b.mu.Unlock()

	msg := eventbus.Result{Message: eventbus.Message{Topic: topic, Event: event}}
	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// reap drops subscribers whose context has already been cancelled. Lazy:
// called on the next publish rather than eagerly on cancellation.
func reap(members []*subscriber) []*subscriber {
	live := members[:0]
	for _, m := range members {
		select {
		case <-m.ctx.Done():
			continue
		default:
			live = append(live, m)
		}
	}
	return live
}
