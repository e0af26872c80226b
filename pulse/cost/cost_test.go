package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/gridpulse/pulse/tier"
	"github.com/teranos/gridpulse/pulse/timeline"
)

var start = time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)

func quarter(i int, price float64) tier.PriceSlot {
	return tier.PriceSlot{Start: start.Add(time.Duration(i) * tier.SlotLength), Price: price}
}

func TestCheckpoints(t *testing.T) {
	e := NewEstimator(DefaultMissingPenalty)
	assert.Equal(t, 1, e.Checkpoints(0))
	assert.Equal(t, 1, e.Checkpoints(5*time.Minute))
	assert.Equal(t, 1, e.Checkpoints(15*time.Minute))
	assert.Equal(t, 2, e.Checkpoints(16*time.Minute))
	assert.Equal(t, 4, e.Checkpoints(time.Hour))
}

func TestAvgCostFullVisibility(t *testing.T) {
	tl := timeline.New([]tier.PriceSlot{quarter(0, 1), quarter(1, 2), quarter(2, 3), quarter(3, 6)})
	e := NewEstimator(DefaultMissingPenalty)

	assert.InDelta(t, 2.0, e.AvgCost(start, 45*time.Minute, tl), 1e-9)
	assert.InDelta(t, 3.0, e.AvgCost(start, time.Hour, tl), 1e-9)
	assert.InDelta(t, 1.0, e.AvgCost(start, time.Minute, tl), 1e-9)
}

func TestAvgCostToleratesMisalignedSlots(t *testing.T) {
	tl := timeline.New([]tier.PriceSlot{
		{Start: start.Add(3 * time.Minute), Price: 2},
		{Start: start.Add(19 * time.Minute), Price: 4},
	})
	e := NewEstimator(DefaultMissingPenalty)

	assert.InDelta(t, 3.0, e.AvgCost(start, 30*time.Minute, tl), 1e-9)
}

func TestAvgCostPenalisesGaps(t *testing.T) {
	// 02:15 is missing
	tl := timeline.New([]tier.PriceSlot{quarter(0, 1), quarter(2, 1)})
	e := NewEstimator(DefaultMissingPenalty)

	assert.InDelta(t, (1+5+1)/3.0, e.AvgCost(start, 45*time.Minute, tl), 1e-9)
	assert.InDelta(t, DefaultMissingPenalty, e.AvgCost(start, time.Hour, timeline.New()), 1e-9)
}

func TestAvgCostDeterministic(t *testing.T) {
	tl := timeline.New([]tier.PriceSlot{quarter(0, 1.5), quarter(3, 2.25), quarter(4, 0.75)})
	e := NewEstimator(DefaultMissingPenalty)

	first := e.AvgCost(start, 80*time.Minute, tl)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.AvgCost(start, 80*time.Minute, tl))
	}
}

func TestAvgCostMonotoneInPenalty(t *testing.T) {
	tl := timeline.New([]tier.PriceSlot{quarter(0, 1.5), quarter(3, 2.25)})

	prev := -1.0
	for _, penalty := range []float64{0, 0.5, 1, 5, 10, 100} {
		got := NewEstimator(penalty).AvgCost(start, 2*time.Hour, tl)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}
