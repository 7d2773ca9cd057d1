// Package eventbus defines the topic-based pub/sub contract: at-least-once
// delivery, in-order within a partition, consumer groups keyed by a
// deterministic (sorted) topic list.
package eventbus

import (
	"context"
	"sort"
	"strings"

	"github.com/rakhimjonshokirov/eventkit/corerr"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Message is a delivered event plus the topic it arrived on. The bus never
// inspects Event.Data.
type Message struct {
	Topic string
	Event eventstore.SerializedEvent
}

// Bus is the contract both the in-memory twin (membus) and the external,
// broker-backed implementation (rabbitbus) satisfy.
type Bus interface {
	// Publish delivers event to topic with at-least-once semantics.
	Publish(ctx context.Context, topic string, event eventstore.SerializedEvent) error

	// Subscribe returns a long-running stream of Result[SerializedEvent]
	// for the given topics, sharing load within group. The
	// returned channel is bounded; a slow consumer backpressures the
	// publisher (in-memory) or lags its group (external) rather than
	// silently dropping messages.
	Subscribe(ctx context.Context, group string, topics []string) (<-chan Result, error)
}

// Result is either a delivered Message or a delivery-time error: a stream
// of results rather than a stream of bare messages, so a subscriber can
// observe and log delivery failures instead of having them swallowed.
//
// Ack and Nack settle the delivery once the subscriber has finished
// handling it; the subscriber, not the bus, decides when that is, so
// acknowledgement reflects "processed" rather than merely "received off
// the wire". Both are nil-safe: an implementation with nothing to settle
// (the in-memory twin) leaves them nil, and callers must guard for that
// before invoking. Nack requeues the delivery for redelivery.
type Result struct {
	Message Message
	Err     error
	Ack     func()
	Nack    func()
}

// GroupID builds the deterministic default consumer-group id from a topic
// list: the topics sorted and joined, so two subscriptions naming the same
// topics in different order land in the same group instead of each
// receiving a full copy.
func GroupID(topics []string) string {
	sorted := append([]string(nil), topics...)
	sort.Strings(sorted)
	return strings.Join(sorted, "+")
}

// EventsTopic and CommandsTopic build the two topic-naming conventions:
// "<aggregate>-events" for events, "<aggregate>.commands" for commands.
func EventsTopic(aggregate string) string   { return aggregate + "-events" }
func CommandsTopic(aggregate string) string { return aggregate + ".commands" }

// BackendUnavailable wraps a transport-level publish/subscribe failure.
func BackendUnavailable(message string, cause error) error {
	return corerr.Wrap(corerr.KindBackendUnavailable, message, cause)
}
