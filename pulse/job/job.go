// Package job defines the recurring jobs gridpulse schedules and the
// statistics it learns about them.
package job

import (
	"sort"
	"strings"
	"time"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/tier"
)

// HistoryLimit is how many recent run durations are kept per job.
const HistoryLimit = 30

// Definition is a statically configured recurring job.
type Definition struct {
	ID             string
	Command        string
	InitialRuntime time.Duration
	MinInterval    time.Duration
	MaxInterval    time.Duration
	MaxTier        int
	Profile        string
	Group          string // empty: no exclusion group
	Order          int
}

// Validate checks the invariants a definition must hold before scheduling.
func (d Definition) Validate() error {
	switch {
	case strings.TrimSpace(d.ID) == "":
		return errors.NewInvalidRequestError("job id is required")
	case strings.TrimSpace(d.Command) == "":
		return errors.NewInvalidRequestError("job %q: command is required", d.ID)
	case d.InitialRuntime <= 0:
		return errors.NewInvalidRequestError("job %q: initial runtime must be positive, got %s", d.ID, d.InitialRuntime)
	case d.MinInterval < 0:
		return errors.NewInvalidRequestError("job %q: min interval must not be negative", d.ID)
	case d.MinInterval > d.MaxInterval:
		return errors.NewInvalidRequestError("job %q: min interval %s exceeds max interval %s", d.ID, d.MinInterval, d.MaxInterval)
	case d.MaxTier < tier.MinTier || (d.MaxTier > tier.MaxTier && d.MaxTier != tier.TierBlocked):
		return errors.NewInvalidRequestError("job %q: max tier %d out of range %d-%d", d.ID, d.MaxTier, tier.MinTier, tier.MaxTier)
	}
	return nil
}

// SortByOrder returns defs ordered by Order ascending. Equal orders keep
// their declaration order.
func SortByOrder(defs []Definition) []Definition {
	out := append([]Definition(nil), defs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// State is what gridpulse has learned about a job from past runs.
type State struct {
	JobID       string
	History     []time.Duration // oldest first, at most HistoryLimit entries
	AvgDuration time.Duration
	LastRunAt   *time.Time
}

// Record appends a completed run, keeps the newest HistoryLimit durations,
// recomputes the mean and stamps the completion time.
func (s *State) Record(d time.Duration, completedAt time.Time) {
	s.History = append(s.History, d)
	if n := len(s.History); n > HistoryLimit {
		s.History = append([]time.Duration(nil), s.History[n-HistoryLimit:]...)
	}
	s.AvgDuration = Mean(s.History)
	at := completedAt
	s.LastRunAt = &at
}

// Mean returns the arithmetic mean of ds, or 0 for an empty slice.
func Mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}
