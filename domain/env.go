// Package domain holds the Environment every ticketing aggregate reducer
// closes over: the event store and bus ports plus the framework's clock
// and id-generation ports. One shared type avoids four
// near-identical Environment structs across order/inventory/payment/
// reservation, which otherwise differ only in which aggregate is asking.
package domain

import (
	"github.com/rakhimjonshokirov/eventkit/envport"
	"github.com/rakhimjonshokirov/eventkit/eventbus"
	"github.com/rakhimjonshokirov/eventkit/eventstore"
)

// Environment is passed by value into every Reduce call, read-only from
// the reducer's perspective.
type Environment struct {
	Store eventstore.EventStore
	Bus   eventbus.Bus
	Clock envport.Clock
	IDs   envport.IDGenerator
}
