package checkout

import (
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/effect"
)

// handlePaymentAuthorized records a refund compensation and captures the
// authorized hold.
func (state *State) handlePaymentAuthorized(env Environment) effect.Effect[Action] {
	state.compensation.Push("authorize_payment", compensationCommand{target: "payment", orderID: state.OrderID})

	return sendPayment(env, state.OrderID, payment.Action{Kind: payment.Capture, OrderID: state.OrderID})
}

// handlePaymentCaptured confirms the order and the reservation in
// parallel. It pushes no compensation: the payment entry pushed in
// handlePaymentAuthorized already maps to a refund.
func (state *State) handlePaymentCaptured(env Environment) effect.Effect[Action] {
	return effect.Parallel(
		sendOrder(env, state.OrderID, order.Action{Kind: order.Confirm, OrderID: state.OrderID}),
		sendReservation(env, state.OrderID, reservation.Action{Kind: reservation.Confirm, OrderID: state.OrderID}),
	)
}
