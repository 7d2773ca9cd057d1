package checkout

import (
	"github.com/rakhimjonshokirov/eventkit/domain/inventory"
	"github.com/rakhimjonshokirov/eventkit/domain/payment"
	"github.com/rakhimjonshokirov/eventkit/effect"
)

// maybeHoldInventory fires the inventory hold once both first-round
// events (order placed, reservation created) have landed; either order
// is possible since the two commands run in parallel (initiate.go), so
// this step waits for whichever arrives second. Alongside the hold it
// schedules a Delay that fires InventoryTimeout if neither InventoryHeld
// nor InventoryRejected arrives within inventoryHoldTimeout, so a stalled
// inventory aggregate cannot hang the saga forever.
func (state *State) maybeHoldInventory(env Environment) effect.Effect[Action] {
	if !state.orderPlaced || !state.reservationCreated {
		return effect.None[Action]()
	}
	state.inventoryPending = true
	return effect.Parallel(
		sendInventory(env, state.TicketClass, inventory.Action{
			Kind: inventory.Hold, TicketClass: state.TicketClass, Quantity: state.Quantity, OrderID: state.OrderID,
		}),
		effect.Delay(inventoryHoldTimeout, Action{Kind: InventoryTimeout, OrderID: state.OrderID}),
	)
}

// handleInventoryHeld records the hold so it can be released on failure,
// then authorizes payment.
func (state *State) handleInventoryHeld(env Environment) effect.Effect[Action] {
	state.compensation.Push("hold_inventory", compensationCommand{target: "inventory", orderID: state.OrderID, ticketClass: state.TicketClass})

	return sendPayment(env, state.OrderID, payment.Action{
		Kind: payment.Authorize, OrderID: state.OrderID, AmountCents: state.UnitPriceCents * int64(state.Quantity),
	})
}
