package checkout

import (
	"github.com/rakhimjonshokirov/eventkit/effect"
	"github.com/rakhimjonshokirov/eventkit/saga"
)

// handleConfirmed marks the saga Completed the first time either the
// order-confirmed or reservation-confirmed event arrives; the other is a
// no-op once Status is already terminal, since Reduce's duplicate guard
// only catches repeat deliveries of the same event id, not distinct
// events that both signal completion.
func (state *State) handleConfirmed() effect.Effect[Action] {
	if state.Status == saga.StatusCompleted {
		return effect.None[Action]()
	}
	state.Status = saga.StatusCompleted
	state.compensation.Unwind() // discard; nothing left to compensate on success
	return effect.None[Action]()
}
