// Package cost estimates what a job would pay on average if started at a
// given moment.
package cost

import (
	"time"

	"github.com/teranos/gridpulse/pulse/tier"
	"github.com/teranos/gridpulse/pulse/timeline"
)

const (
	// DefaultMissingPenalty is charged for every checkpoint without price data.
	DefaultMissingPenalty = 5.0
	// DefaultMatchTolerance is how far a slot start may sit from a checkpoint.
	DefaultMatchTolerance = 5 * time.Minute
)

// Estimator averages slot prices over a job's expected run.
type Estimator struct {
	MissingPenalty float64
	MatchTolerance time.Duration
	Step           time.Duration
}

// NewEstimator returns an estimator with the given missing-data penalty and
// the default tolerance and step.
func NewEstimator(missingPenalty float64) *Estimator {
	return &Estimator{
		MissingPenalty: missingPenalty,
		MatchTolerance: DefaultMatchTolerance,
		Step:           tier.SlotLength,
	}
}

// Checkpoints returns how many slot-length steps a run of duration spans:
// ceil(duration/step), at least one.
func (e *Estimator) Checkpoints(duration time.Duration) int {
	step := e.step()
	n := int(duration / step)
	if duration%step != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}

// AvgCost is the mean price over the checkpoints start, start+step, ... of a
// run lasting duration. Checkpoints with no slot within tolerance count as
// MissingPenalty, which steers the choice toward fully visible windows.
func (e *Estimator) AvgCost(start time.Time, duration time.Duration, tl *timeline.Timeline) float64 {
	n := e.Checkpoints(duration)
	step := e.step()

	var sum float64
	for i := 0; i < n; i++ {
		at := start.Add(time.Duration(i) * step)
		if s, ok := tl.Nearest(at, e.MatchTolerance); ok {
			sum += s.Price
		} else {
			sum += e.MissingPenalty
		}
	}
	return sum / float64(n)
}

func (e *Estimator) step() time.Duration {
	if e.Step <= 0 {
		return tier.SlotLength
	}
	return e.Step
}
