package saga

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type reserveCmd struct {
	orderID string
}

func TestCompensationStackUnwindsInReverseOrder(t *testing.T) {
	var stack CompensationStack[reserveCmd]
	stack.Push("reserve_inventory", reserveCmd{orderID: "o-1"})
	stack.Push("charge_payment", reserveCmd{orderID: "o-1"})
	stack.Push("confirm_reservation", reserveCmd{orderID: "o-1"})

	steps := stack.Unwind()
	assert.Equal(t, []string{"confirm_reservation", "charge_payment", "reserve_inventory"}, stepNames(steps))
	assert.Equal(t, 0, stack.Len())
}

func TestCompensationStackUnwindTwiceIsIdempotent(t *testing.T) {
	var stack CompensationStack[reserveCmd]
	stack.Push("reserve_inventory", reserveCmd{orderID: "o-1"})
	_ = stack.Unwind()

	assert.Nil(t, stack.Unwind())
}

func TestSeenEventsMarksAndReportsDuplicates(t *testing.T) {
	seen := NewSeenEvents()
	assert.False(t, seen.Contains("evt-1"))

	seen.Mark("evt-1")
	assert.True(t, seen.Contains("evt-1"))
	assert.False(t, seen.Contains("evt-2"))
}

func stepNames(steps []CompensationStep[reserveCmd]) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.StepName
	}
	return out
}
