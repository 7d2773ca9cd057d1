package checkout

import (
	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/saga"
)

// fail unwinds every compensation pushed so far, in reverse completion
// order, alongside failing the order and closing the reservation. All of
// it runs as one Parallel effect since the compensating commands target
// independent aggregates and none depends on another's result.
func (state *State) fail(env Environment, reason string) effect.Effect[Action] {
	if state.Status == saga.StatusFailed || state.Status == saga.StatusCompleted {
		return effect.None[Action]() // already terminal; nothing left to unwind
	}
	state.Status = saga.StatusCompensating
	state.FailureReason = reason

	effects := []effect.Effect[Action]{
		sendOrder(env, state.OrderID, order.Action{Kind: order.Fail, OrderID: state.OrderID, Reason: reason}),
		sendReservation(env, state.OrderID, reservation.Action{Kind: reservation.Close, OrderID: state.OrderID, Reason: reason}),
	}
	for _, step := range state.compensation.Unwind() {
		effects = append(effects, compensate(env, step.Command))
	}

	state.Status = saga.StatusFailed
	return effect.Parallel(effects...)
}

// compensate maps a pushed compensationCommand to the concrete aggregate
// command that undoes it.
func compensate(env Environment, cmd compensationCommand) effect.Effect[Action] {
	switch cmd.target {
	case "inventory":
		return sendInventory(env, cmd.ticketClass, inventory.Action{Kind: inventory.Release, TicketClass: cmd.ticketClass, OrderID: cmd.orderID})
	case "payment":
		return sendPayment(env, cmd.orderID, payment.Action{Kind: payment.Refund, OrderID: cmd.orderID})
	default:
		return effect.None[Action]()
	}
}
