package checkout

import (
	"github.com/rakhimjonshokirov/eventkit/domain/order"
	"github.com/rakhimjonshokirov/eventkit/domain/reservation"
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/saga"
)

// handleInitiate seeds State from the starting command and fires the two
// first-round commands in parallel: place the order and create the seat
// reservation. Neither waits on the other; maybeHoldInventory fires once
// both have reported back (reserve.go).
func (state *State) handleInitiate(env Environment, action Action) effect.Effect[Action] {
	state.CorrelationID = action.CorrelationID
	state.OrderID = action.OrderID
	state.CustomerID = action.CustomerID
	state.TicketClass = action.TicketClass
	state.Quantity = action.Quantity
	state.UnitPriceCents = action.UnitPriceCents
	state.Status = saga.StatusRunning

	return effect.Parallel(
		sendOrder(env, state.OrderID, order.Action{
			Kind: order.Place, OrderID: state.OrderID, CustomerID: state.CustomerID,
			TicketClass: state.TicketClass, Quantity: state.Quantity, UnitPriceCents: state.UnitPriceCents,
		}),
		sendReservation(env, state.OrderID, reservation.Action{
			Kind: reservation.Create, OrderID: state.OrderID, TicketClass: state.TicketClass, Quantity: state.Quantity,
		}),
	)
}
