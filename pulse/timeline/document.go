package timeline

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/calendar"
	"github.com/teranos/gridpulse/pulse/tier"
)

// Slot status values written to schedule files.
const (
	StatusAllowed = "ALLOWED"
	StatusBlocked = "BLOCKED"
)

// DateLayout names schedule files and the target_date field.
const DateLayout = "2006-01-02"

// document is the on-disk shape of a schedule file:
//
//	{
//	  "metadata": {"target_date": "2026-03-03", "profile_mode": "STANDARD", ...},
//	  "timeline": {"2026-03-03T00:00:00+01:00": {"price_rp": 4.21, "tier": 7, "status": "ALLOWED"}, ...}
//	}
type document struct {
	Metadata metadata                `json:"metadata"`
	Timeline map[string]slotDocument `json:"timeline"`
}

type metadata struct {
	TargetDate     string  `json:"target_date"`
	GeneratedAt    string  `json:"generated_at"`
	ProfileMode    string  `json:"profile_mode"`
	CalendarReason string  `json:"calendar_reason"`
	HardCapRp      float64 `json:"hard_cap_rp"`
}

type slotDocument struct {
	PriceRp *float64 `json:"price_rp"`
	Tier    *int     `json:"tier"`
	Status  string   `json:"status"`
}

// naive layouts are accepted for keys written without a UTC offset.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parseTimestamp reads RFC3339 or a naive local timestamp in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised timestamp %q", s)
}

func encodeSchedule(s *tier.DailySchedule) ([]byte, error) {
	doc := document{
		Metadata: metadata{
			TargetDate:     s.Date.Format(DateLayout),
			GeneratedAt:    s.GeneratedAt.Format(time.RFC3339),
			ProfileMode:    string(s.DayType),
			CalendarReason: s.CalendarReason,
			HardCapRp:      s.HardCap,
		},
		Timeline: make(map[string]slotDocument, len(s.Timeline)),
	}
	for _, slot := range s.Timeline {
		price, t := slot.Price, slot.Tier
		status := StatusAllowed
		if slot.Blocked {
			status = StatusBlocked
		}
		doc.Timeline[slot.Start.Format(time.RFC3339)] = slotDocument{PriceRp: &price, Tier: &t, Status: status}
	}
	return json.MarshalIndent(doc, "", "    ")
}

// decodeSchedule parses a schedule file. Individual timeline records with an
// unreadable key or a missing price or tier are skipped and counted; a
// document that is not valid JSON is an error.
func decodeSchedule(data []byte, date time.Time, loc *time.Location) (*tier.DailySchedule, int, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, errors.Wrap(err, "malformed schedule document")
	}

	s := &tier.DailySchedule{
		Date:           date,
		DayType:        calendar.Standard,
		CalendarReason: doc.Metadata.CalendarReason,
		HardCap:        doc.Metadata.HardCapRp,
	}
	if d, err := time.ParseInLocation(DateLayout, doc.Metadata.TargetDate, loc); err == nil {
		s.Date = d
	}
	if dt, err := calendar.ParseDayType(doc.Metadata.ProfileMode); err == nil {
		s.DayType = dt
	}
	if g, err := parseTimestamp(doc.Metadata.GeneratedAt, loc); err == nil {
		s.GeneratedAt = g
	}

	skipped := 0
	for key, rec := range doc.Timeline {
		start, err := parseTimestamp(key, loc)
		if err != nil || rec.PriceRp == nil || rec.Tier == nil {
			skipped++
			continue
		}
		s.Timeline = append(s.Timeline, tier.PriceSlot{
			Start:   start,
			Price:   *rec.PriceRp,
			Tier:    *rec.Tier,
			Blocked: rec.Status == StatusBlocked || *rec.Tier == tier.TierBlocked,
		})
	}
	sort.Slice(s.Timeline, func(i, j int) bool {
		return s.Timeline[i].Start.Before(s.Timeline[j].Start)
	})
	return s, skipped, nil
}
