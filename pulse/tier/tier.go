// Package tier classifies a day's price forecast into percentile tiers.
//
// Slots priced at or below the hard cap get a tier from 1 (cheapest 5%) to 20
// (most expensive 5%), ranked only against the other allowed slots of the same
// day. Slots above the cap are blocked with TierBlocked.
package tier

import (
	"sort"
	"time"

	"github.com/teranos/gridpulse/internal/util"
	"github.com/teranos/gridpulse/pulse/calendar"
)

const (
	// MinTier is the cheapest tier.
	MinTier = 1
	// MaxTier is the most expensive tier a non-blocked slot can have.
	MaxTier = 20
	// TierBlocked marks slots priced above the hard cap.
	TierBlocked = 99
	// BucketPercent is the width of one tier in percentile points.
	BucketPercent = 5

	// DefaultHardCap is the price ceiling in Rp/kWh above which a slot is blocked.
	DefaultHardCap = 6.0

	// SlotLength is the granularity of the price feed.
	SlotLength = 15 * time.Minute
)

// RawPrice is one unclassified forecast point, already converted to Rp.
type RawPrice struct {
	Start time.Time
	Price float64
}

// PriceSlot is a classified forecast point.
type PriceSlot struct {
	Start   time.Time
	Price   float64
	Tier    int
	Blocked bool
}

// DailySchedule is the classified forecast for one calendar day.
type DailySchedule struct {
	Date           time.Time
	DayType        calendar.DayType
	CalendarReason string
	HardCap        float64
	GeneratedAt    time.Time
	Timeline       []PriceSlot
}

// Classify assigns tiers to raw and returns the slots ordered by start time.
//
// A slot's rank is the index of the first occurrence of its price among the
// sorted allowed prices, so equal prices share a rank and slots with higher
// prices never get a lower tier.
func Classify(raw []RawPrice, hardCap float64) []PriceSlot {
	allowed := make([]float64, 0, len(raw))
	for _, r := range raw {
		if r.Price <= hardCap {
			allowed = append(allowed, r.Price)
		}
	}
	sort.Float64s(allowed)

	slots := make([]PriceSlot, 0, len(raw))
	for _, r := range raw {
		slot := PriceSlot{Start: r.Start, Price: r.Price}
		if r.Price > hardCap || len(allowed) == 0 {
			slot.Tier = TierBlocked
			slot.Blocked = true
		} else {
			rank := sort.SearchFloat64s(allowed, r.Price)
			slot.Tier = tierForRank(rank, len(allowed))
		}
		slots = append(slots, slot)
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

// tierForRank computes floor(rank/total*100 / BucketPercent) + 1 in integer
// arithmetic so bucket edges are exact.
func tierForRank(rank, total int) int {
	t := rank*100/(BucketPercent*total) + 1
	return util.ClampInt(t, MinTier, MaxTier)
}

// Resolver supplies the day type and reason recorded in a schedule.
type Resolver interface {
	Resolve(date time.Time) (calendar.DayType, string)
}

// Build classifies raw into the schedule for date.
func Build(date time.Time, raw []RawPrice, hardCap float64, resolver Resolver, generatedAt time.Time) *DailySchedule {
	dayType, reason := resolver.Resolve(date)
	y, m, d := date.Date()
	return &DailySchedule{
		Date:           time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
		DayType:        dayType,
		CalendarReason: reason,
		HardCap:        hardCap,
		GeneratedAt:    generatedAt,
		Timeline:       Classify(raw, hardCap),
	}
}

// Summary describes the spread of one schedule.
type Summary struct {
	Slots    int
	Blocked  int
	MinPrice float64
	MaxPrice float64
	Cheapest time.Time
}

// Summarize reports slot counts and the cheapest slot of s.
func (s *DailySchedule) Summarize() Summary {
	sum := Summary{Slots: len(s.Timeline)}
	for i, slot := range s.Timeline {
		if slot.Blocked {
			sum.Blocked++
		}
		if i == 0 || slot.Price < sum.MinPrice {
			sum.MinPrice = slot.Price
			sum.Cheapest = slot.Start
		}
		if i == 0 || slot.Price > sum.MaxPrice {
			sum.MaxPrice = slot.Price
		}
	}
	return sum
}
