// Package decide makes the run-now-or-wait call for a single job.
//
// The checks run in a fixed order and the first decisive one wins:
//
//  1. the job's time profile blocks the current hour: wait
//  2. no price data at all: run
//  3. no slot covers now: run
//  4. still inside min_interval since the last run: wait
//  5. past last run + max_interval: run, whatever the price
//  6. no candidate start before the deadline: run
//  7. now is within tolerance of the cheapest candidate window: run unless
//     the current slot's tier is above the job's ceiling; otherwise wait
//
// Missing data never blocks a job.
package decide

import (
	"time"

	"github.com/teranos/gridpulse/pulse/calendar"
	"github.com/teranos/gridpulse/pulse/cost"
	"github.com/teranos/gridpulse/pulse/job"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// Reason names the branch that produced a decision.
type Reason string

const (
	ReasonProfileBlocked Reason = "profile_blocked"
	ReasonNoTimeline     Reason = "no_timeline"
	ReasonNoCurrentSlot  Reason = "no_current_slot"
	ReasonCooldown       Reason = "cooldown"
	ReasonDeadline       Reason = "deadline"
	ReasonNoCandidates   Reason = "no_candidates"
	ReasonOptimal        Reason = "optimal"
	ReasonTierTooHigh    Reason = "tier_too_high"
	ReasonBetterWindow   Reason = "better_window"
)

// Defaults for Config.
const (
	DefaultTolerance      = 0.1
	DefaultFirstRunWindow = 48 * time.Hour
	DefaultRuntimeFloor   = 5 * time.Minute
)

// Gate reports whether a profile blocks the hour of a moment on a day type.
type Gate interface {
	BlocksAt(profileName string, dayType calendar.DayType, t time.Time) bool
}

// DayTyper resolves the day type of a moment.
type DayTyper interface {
	DayType(date time.Time) calendar.DayType
}

// Config tunes the engine.
type Config struct {
	// Tolerance is how much more than the best window now may cost and still win.
	Tolerance float64
	// FirstRunWindow is how far ahead a job that never ran looks for a cheaper start.
	FirstRunWindow time.Duration
	// RuntimeFloor is the shortest learned average trusted over the initial estimate.
	RuntimeFloor time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Tolerance:      DefaultTolerance,
		FirstRunWindow: DefaultFirstRunWindow,
		RuntimeFloor:   DefaultRuntimeFloor,
	}
}

// Decision is the verdict for one job plus the numbers behind it.
type Decision struct {
	Run         bool
	Reason      Reason
	DayType     calendar.DayType
	Runtime     time.Duration
	Tier        int       // tier of the current slot, 0 when unknown
	CurrentCost float64   // average cost of starting now
	BestCost    float64   // cheapest candidate average cost
	BestStart   time.Time // start of the cheapest candidate window
	Deadline    time.Time // end of the search window
	Remaining   time.Duration
}

// Engine evaluates jobs against a price timeline.
type Engine struct {
	gate      Gate
	days      DayTyper
	estimator *cost.Estimator
	cfg       Config
}

// NewEngine wires an engine. Unset durations and a negative tolerance take
// their defaults.
func NewEngine(gate Gate, days DayTyper, estimator *cost.Estimator, cfg Config) *Engine {
	if cfg.FirstRunWindow <= 0 {
		cfg.FirstRunWindow = DefaultFirstRunWindow
	}
	if cfg.RuntimeFloor <= 0 {
		cfg.RuntimeFloor = DefaultRuntimeFloor
	}
	if cfg.Tolerance < 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if estimator == nil {
		estimator = cost.NewEstimator(cost.DefaultMissingPenalty)
	}
	return &Engine{gate: gate, days: days, estimator: estimator, cfg: cfg}
}

// ShouldRunNow reports whether def should be launched at now.
func (e *Engine) ShouldRunNow(def job.Definition, st *job.State, now time.Time, tl *timeline.Timeline) bool {
	return e.Evaluate(def, st, now, tl).Run
}

// Evaluate runs the decision procedure for def at now. st is nil for a job
// that has never completed.
func (e *Engine) Evaluate(def job.Definition, st *job.State, now time.Time, tl *timeline.Timeline) Decision {
	dayType := e.days.DayType(now)
	d := Decision{DayType: dayType}

	if e.gate.BlocksAt(def.Profile, dayType, now) {
		d.Reason = ReasonProfileBlocked
		return d
	}

	if tl.Empty() {
		d.Run, d.Reason = true, ReasonNoTimeline
		return d
	}

	current, ok := tl.Current(now)
	if !ok {
		d.Run, d.Reason = true, ReasonNoCurrentSlot
		return d
	}
	d.Tier = current.Tier

	d.Runtime = def.InitialRuntime
	if st != nil && st.AvgDuration >= e.cfg.RuntimeFloor {
		d.Runtime = st.AvgDuration
	}

	if st == nil || st.LastRunAt == nil {
		d.Deadline = now.Add(e.cfg.FirstRunWindow)
	} else {
		last := *st.LastRunAt
		if elapsed := now.Sub(last); elapsed < def.MinInterval {
			d.Reason = ReasonCooldown
			d.Remaining = def.MinInterval - elapsed
			return d
		}
		d.Deadline = last.Add(def.MaxInterval)
		if !now.Before(d.Deadline) {
			d.Run, d.Reason = true, ReasonDeadline
			return d
		}
	}

	d.CurrentCost = e.estimator.AvgCost(now, d.Runtime, tl)

	// Future candidates are gated with today's day type even when they fall
	// on the next calendar day.
	found := false
	for _, slot := range tl.Between(now, d.Deadline) {
		if e.gate.BlocksAt(def.Profile, dayType, slot.Start) {
			continue
		}
		c := e.estimator.AvgCost(slot.Start, d.Runtime, tl)
		if !found || c < d.BestCost {
			d.BestCost, d.BestStart, found = c, slot.Start, true
		}
	}
	if !found {
		d.Run, d.Reason = true, ReasonNoCandidates
		return d
	}

	if d.CurrentCost <= d.BestCost+e.cfg.Tolerance {
		if current.Tier > def.MaxTier {
			d.Reason = ReasonTierTooHigh
			return d
		}
		d.Run, d.Reason = true, ReasonOptimal
		return d
	}

	d.Reason = ReasonBetterWindow
	return d
}
