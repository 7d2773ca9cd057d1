package eventbus

import "testing"

func TestGroupIDIndependentOfTopicOrder(t *testing.T) {
	a := GroupID([]string{"order-events", "payment-events"})
	b := GroupID([]string{"payment-events", "order-events"})
	if a != b {
		t.Fatalf("expected order-independent group id, got %q vs %q", a, b)
	}
}

func TestTopicNamingConventions(t *testing.T) {
	if got := EventsTopic("order"); got != "order-events" {
		t.Fatalf("EventsTopic: got %q", got)
	}
	if got := CommandsTopic("order"); got != "order.commands" {
		t.Fatalf("CommandsTopic: got %q", got)
	}
}
