// Package profile gates job start times by hour of day.
//
// A time profile names, per day type, the hours (0-23) in which a job must not
// be started. Profiles are looked up case-insensitively; an unknown profile
// blocks nothing so that a typo never stalls a job forever.
package profile

import (
	"sort"
	"strings"
	"time"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/calendar"
)

// Built-in profile names.
const (
	Strict     = "STRICT"
	NightOnly  = "NIGHT_ONLY"
	IgnoreTime = "IGNORE_TIME"
)

// HourSet is a bitmask of blocked hours.
type HourSet uint32

// NewHourSet builds a set from hour numbers, rejecting anything outside 0-23.
func NewHourSet(hours ...int) (HourSet, error) {
	var s HourSet
	for _, h := range hours {
		if h < 0 || h > 23 {
			return 0, errors.Newf("hour %d out of range 0-23", h)
		}
		s |= 1 << uint(h)
	}
	return s, nil
}

func mustHours(hours ...int) HourSet {
	s, err := NewHourSet(hours...)
	if err != nil {
		panic(err)
	}
	return s
}

// Contains reports whether hour is in the set.
func (s HourSet) Contains(hour int) bool {
	return hour >= 0 && hour <= 23 && s&(1<<uint(hour)) != 0
}

// Hours lists the members in ascending order.
func (s HourSet) Hours() []int {
	var out []int
	for h := 0; h < 24; h++ {
		if s.Contains(h) {
			out = append(out, h)
		}
	}
	return out
}

// TimeProfile is a named set of blocked hours per day type.
type TimeProfile struct {
	Name    string
	Blocked map[calendar.DayType]HourSet
}

// Builtins returns fresh copies of the built-in profiles.
func Builtins() []TimeProfile {
	night := mustHours(7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23)
	return []TimeProfile{
		{
			Name: Strict,
			Blocked: map[calendar.DayType]HourSet{
				calendar.Standard: mustHours(18, 19, 20, 21, 22),
				calendar.Weekend:  mustHours(12, 13, 18, 19, 20, 21),
			},
		},
		{
			Name: NightOnly,
			Blocked: map[calendar.DayType]HourSet{
				calendar.Standard: night,
				calendar.Weekend:  night,
			},
		},
		{
			Name:    IgnoreTime,
			Blocked: map[calendar.DayType]HourSet{},
		},
	}
}

// Gate answers whether a profile blocks a given hour.
type Gate struct {
	profiles map[string]TimeProfile
}

// NewGate registers the built-ins followed by extra; a later profile with the
// same name replaces an earlier one.
func NewGate(extra ...TimeProfile) *Gate {
	g := &Gate{profiles: make(map[string]TimeProfile)}
	for _, p := range Builtins() {
		g.profiles[normalize(p.Name)] = p
	}
	for _, p := range extra {
		g.profiles[normalize(p.Name)] = p
	}
	return g
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// IsBlocked reports whether hour is blocked for the named profile on dayType.
// Unknown profiles are never blocked.
func (g *Gate) IsBlocked(profileName string, dayType calendar.DayType, hour int) bool {
	p, ok := g.profiles[normalize(profileName)]
	if !ok {
		return false
	}
	return p.Blocked[dayType].Contains(hour)
}

// BlocksAt is IsBlocked for the local hour of t.
func (g *Gate) BlocksAt(profileName string, dayType calendar.DayType, t time.Time) bool {
	return g.IsBlocked(profileName, dayType, t.Hour())
}

// Known reports whether a profile with that name is registered.
func (g *Gate) Known(profileName string) bool {
	_, ok := g.profiles[normalize(profileName)]
	return ok
}

// Names lists the registered profile names, sorted.
func (g *Gate) Names() []string {
	names := make([]string, 0, len(g.profiles))
	for _, p := range g.profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
