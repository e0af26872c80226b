// Package calendar maps calendar dates to the day type used by time profiles.
//
// Weekends and the configured fixed-date public holidays are WEEKEND days,
// everything else is a STANDARD workday. Movable feasts (Easter, Ascension,
// Whit Monday) are not computed.
package calendar

import (
	"strings"
	"time"

	"github.com/teranos/gridpulse/errors"
)

// DayType selects which hour set a time profile blocks.
type DayType string

const (
	Standard DayType = "STANDARD"
	Weekend  DayType = "WEEKEND"
)

// Reasons reported for non-holiday days.
const (
	ReasonWeekend = "WEEKEND"
	ReasonWorkday = "WORKDAY"
)

// ParseDayType accepts STANDARD or WEEKEND in any case.
func ParseDayType(s string) (DayType, error) {
	switch DayType(strings.ToUpper(strings.TrimSpace(s))) {
	case Standard:
		return Standard, nil
	case Weekend:
		return Weekend, nil
	}
	return "", errors.Newf("unknown day type %q (want STANDARD or WEEKEND)", s)
}

// Holiday is a public holiday falling on the same month and day every year.
type Holiday struct {
	Month time.Month
	Day   int
	Name  string
}

// LucerneHolidays are the fixed-date public holidays of the canton of Lucerne.
var LucerneHolidays = []Holiday{
	{time.January, 1, "Neujahr"},
	{time.January, 2, "Berchtoldstag"},
	{time.May, 1, "Tag der Arbeit"},
	{time.August, 1, "Nationalfeiertag"},
	{time.August, 15, "Maria Himmelfahrt"},
	{time.November, 1, "Allerheiligen"},
	{time.December, 8, "Maria Empfaengnis"},
	{time.December, 25, "Weihnachten"},
	{time.December, 26, "Stephanstag"},
}

type monthDay struct {
	month time.Month
	day   int
}

// Resolver classifies dates against a fixed holiday table. The zero value
// knows no holidays; use NewResolver.
type Resolver struct {
	holidays map[monthDay]string
}

// NewResolver builds a resolver over the given holiday table. A nil table
// falls back to LucerneHolidays; an empty non-nil table disables holidays.
func NewResolver(holidays []Holiday) *Resolver {
	if holidays == nil {
		holidays = LucerneHolidays
	}
	r := &Resolver{holidays: make(map[monthDay]string, len(holidays))}
	for _, h := range holidays {
		key := monthDay{h.Month, h.Day}
		if _, dup := r.holidays[key]; dup {
			continue
		}
		r.holidays[key] = h.Name
	}
	return r
}

// Resolve returns the day type of date and the reason for it: "WEEKEND",
// the holiday name, or "WORKDAY".
func (r *Resolver) Resolve(date time.Time) (DayType, string) {
	if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Weekend, ReasonWeekend
	}
	if r != nil {
		if name, ok := r.holidays[monthDay{date.Month(), date.Day()}]; ok {
			return Weekend, name
		}
	}
	return Standard, ReasonWorkday
}

// DayType is Resolve without the reason.
func (r *Resolver) DayType(date time.Time) DayType {
	dt, _ := r.Resolve(date)
	return dt
}
