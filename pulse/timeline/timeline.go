// Package timeline loads classified price schedules and answers slot lookups
// across day boundaries.
package timeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridpulse/internal/util"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/tier"
)

// Timeline is a merged, start-ordered run of price slots. The zero value is
// an empty timeline.
type Timeline struct {
	slots []tier.PriceSlot
	days  []time.Time
}

// New merges the given slot runs by absolute start time. When two slots
// share a start, the one from the earlier run is kept.
func New(runs ...[]tier.PriceSlot) *Timeline {
	seen := make(map[int64]bool)
	var slots []tier.PriceSlot
	for _, run := range runs {
		for _, s := range run {
			key := s.Start.UnixNano()
			if seen[key] {
				continue
			}
			seen[key] = true
			slots = append(slots, s)
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return &Timeline{slots: slots}
}

// Len returns the number of slots.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.slots)
}

// Empty reports whether there is no price data at all.
func (t *Timeline) Empty() bool { return t.Len() == 0 }

// Slots returns a copy of the slots in start order.
func (t *Timeline) Slots() []tier.PriceSlot {
	if t == nil {
		return nil
	}
	return append([]tier.PriceSlot(nil), t.slots...)
}

// Days lists the calendar days that contributed slots when loaded from a store.
func (t *Timeline) Days() []time.Time {
	if t == nil {
		return nil
	}
	return append([]time.Time(nil), t.days...)
}

// Nearest returns the slot whose start is closest to at, provided it lies
// within tolerance. On an exact tie the earlier slot wins.
func (t *Timeline) Nearest(at time.Time, tolerance time.Duration) (tier.PriceSlot, bool) {
	if t.Len() == 0 {
		return tier.PriceSlot{}, false
	}
	i := sort.Search(len(t.slots), func(i int) bool {
		return !t.slots[i].Start.Before(at)
	})

	best, found := tier.PriceSlot{}, false
	var bestDiff time.Duration
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(t.slots) {
			continue
		}
		diff := util.AbsDuration(t.slots[j].Start.Sub(at))
		if diff > tolerance {
			continue
		}
		if !found || diff < bestDiff {
			best, bestDiff, found = t.slots[j], diff, true
		}
	}
	return best, found
}

// Current returns the slot covering now: the first slot starting at or after
// now and less than one slot length ahead of it.
func (t *Timeline) Current(now time.Time) (tier.PriceSlot, bool) {
	if t.Len() == 0 {
		return tier.PriceSlot{}, false
	}
	i := sort.Search(len(t.slots), func(i int) bool {
		return !t.slots[i].Start.Before(now)
	})
	if i < len(t.slots) && t.slots[i].Start.Sub(now) < tier.SlotLength {
		return t.slots[i], true
	}
	return tier.PriceSlot{}, false
}

// Between returns the slots with from <= start <= to.
func (t *Timeline) Between(from, to time.Time) []tier.PriceSlot {
	if t.Len() == 0 || to.Before(from) {
		return nil
	}
	lo := sort.Search(len(t.slots), func(i int) bool {
		return !t.slots[i].Start.Before(from)
	})
	hi := sort.Search(len(t.slots), func(i int) bool {
		return t.slots[i].Start.After(to)
	})
	if lo >= hi {
		return nil
	}
	return append([]tier.PriceSlot(nil), t.slots[lo:hi]...)
}

// Load merges the schedules for the calendar days of now through
// now+horizonDays. Days that are missing or unreadable are skipped; they only
// shorten the visible horizon.
func Load(ctx context.Context, store ScheduleStore, now time.Time, horizonDays int, log *zap.SugaredLogger) *Timeline {
	if log == nil {
		log = logger.Logger
	}
	if horizonDays < 0 {
		horizonDays = 0
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var runs [][]tier.PriceSlot
	var days []time.Time
	for i := 0; i <= horizonDays; i++ {
		if ctx.Err() != nil {
			break
		}
		day := today.AddDate(0, 0, i)
		s, err := store.Load(day)
		if err != nil {
			log.Debugw("Schedule unavailable, skipping day",
				logger.FieldDate, day.Format(DateLayout),
				logger.FieldError, err,
			)
			continue
		}
		runs = append(runs, s.Timeline)
		days = append(days, day)
	}

	tl := New(runs...)
	tl.days = days
	return tl
}
