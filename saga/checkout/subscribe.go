package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/infrastructure/idempotency"
)

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	processed *idempotency.ProcessedEvents
}

// WithProcessedEvents backs duplicate-delivery detection with a durable
// store in addition to each saga's in-memory saga.SeenEvents. Without
// this option a restarted process only has the in-memory per-saga dedup,
// which is lost along with the rest of checkout.Sagas' cache on crash.
func WithProcessedEvents(p *idempotency.ProcessedEvents) SubscribeOption {
	return func(c *subscribeConfig) { c.processed = p }
}

// subscriberGroup is the consumer group id the saga uses across every
// aggregate's events topic, so restarting the daemon resumes from where
// it left off instead of re-consuming from the start.
const subscriberGroup = "checkout-saga"

// Topics lists the events topics this saga must subscribe to.
func Topics() []string {
	return []string{
		eventbus.EventsTopic("order"),
		eventbus.EventsTopic("inventory"),
		eventbus.EventsTopic("payment"),
		eventbus.EventsTopic("reservation"),
	}
}

// Subscribe relays order/inventory/payment/reservation events into the
// checkout saga keyed by order id (Sagas): each message is decoded
// against its aggregate's own Action union, translated into a
// checkout.Action, and dispatched into that order's saga Store. Runs
// until ctx is cancelled.
func Subscribe(ctx context.Context, bus eventbus.Bus, sagas *Sagas, log *zap.Logger, opts ...SubscribeOption) error {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	results, err := bus.Subscribe(ctx, subscriberGroup, Topics())
	if err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-results:
				if !ok {
					return
				}
				if res.Err != nil {
					log.Warn("checkout subscriber: delivery error", zap.Error(res.Err))
					continue
				}
				translated, orderID, ok := translate(res.Message)
				if !ok {
					// event type this saga never reacts to; nothing to
					// redeliver it for.
					ack(res)
					continue
				}

				if cfg.processed != nil {
					if done, _ := cfg.processed.IsProcessed(ctx, translated.EventID); done {
						ack(res)
						continue
					}
				}

				s := sagas.For(orderID)
				if _, err := s.SendCascading(ctx, translated); err != nil {
					log.Error("checkout subscriber: dispatch", zap.String("order_id", orderID), zap.Error(err))
					nack(res)
					continue
				}

				if cfg.processed != nil {
					if err := cfg.processed.MarkAsProcessed(ctx, translated.EventID, orderID, string(translated.Kind), subscriberGroup); err != nil {
						log.Warn("checkout subscriber: mark processed", zap.String("event_id", translated.EventID), zap.Error(err))
					}
				}
				ack(res)
			}
		}
	}()

	return nil
}

// ack and nack settle a delivery once this subscriber has actually
// finished with it (dispatched, or determined there was nothing to
// dispatch), never merely on receipt off the channel: acking here rather
// than in the bus implementation's consume loop is what makes delivery
// at-least-once rather than at-most-once across a crash between receipt
// and processing. Both are nil-safe since an in-memory bus has nothing
// to settle.
func ack(res eventbus.Result) {
	if res.Ack != nil {
		res.Ack()
	}
}

func nack(res eventbus.Result) {
	if res.Nack != nil {
		res.Nack()
	}
}

// translate decodes a bus message against the aggregate it came from and
// maps it to the checkout saga's Action union. ok is false for event
// types the saga does not react to (e.g. Opened/Restocked on inventory).
func translate(msg eventbus.Message) (action Action, orderID string, ok bool) {
	switch msg.Topic {
	case eventbus.EventsTopic("order"):
		evt, err := order.Decode(msg.Event)
		if err != nil {
			return Action{}, "", false
		}
		switch evt.Kind {
		case order.Placed:
			return Action{Kind: OrderPlaced, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		case order.Confirmed:
			return Action{Kind: OrderConfirmed, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		}

	case eventbus.EventsTopic("inventory"):
		evt, err := inventory.Decode(msg.Event)
		if err != nil {
			return Action{}, "", false
		}
		switch evt.Kind {
		case inventory.Held:
			return Action{Kind: InventoryHeld, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		case inventory.Rejected:
			return Action{Kind: InventoryRejected, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID, Reason: evt.Reason}, evt.OrderID, true
		}

	case eventbus.EventsTopic("payment"):
		evt, err := payment.Decode(msg.Event)
		if err != nil {
			return Action{}, "", false
		}
		switch evt.Kind {
		case payment.Authorized:
			return Action{Kind: PaymentAuthorized, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		case payment.Declined:
			return Action{Kind: PaymentDeclined, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID, Reason: evt.DeclineReason}, evt.OrderID, true
		case payment.Captured:
			return Action{Kind: PaymentCaptured, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		}

	case eventbus.EventsTopic("reservation"):
		evt, err := reservation.Decode(msg.Event)
		if err != nil {
			return Action{}, "", false
		}
		switch evt.Kind {
		case reservation.Created:
			return Action{Kind: ReservationCreated, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		case reservation.Confirmed:
			return Action{Kind: ReservationConfirmed, EventID: string(evt.Kind) + ":" + evt.OrderID, OrderID: evt.OrderID}, evt.OrderID, true
		}
	}

	return Action{}, "", false
}
