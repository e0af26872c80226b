package am

import (
	"sort"
	"time"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/calendar"
	"github.com/teranos/gridpulse/pulse/job"
	"github.com/teranos/gridpulse/pulse/profile"
	"github.com/teranos/gridpulse/pulse/tier"
)

// JobDefinitions converts the [[jobs]] tables into validated definitions,
// in declaration order.
func (c *Config) JobDefinitions() ([]job.Definition, error) {
	defs := make([]job.Definition, 0, len(c.Jobs))
	for i, jc := range c.Jobs {
		d := job.Definition{
			ID:             jc.ID,
			Command:        jc.Command,
			InitialRuntime: minutes(jc.InitialRuntimeMin),
			MinInterval:    hours(jc.MinIntervalHours),
			MaxInterval:    hours(jc.MaxIntervalHours),
			MaxTier:        tier.MaxTier,
			Profile:        jc.ProfileMode,
			Group:          jc.Group,
			Order:          DefaultJobOrder,
		}
		if jc.MaxTier != nil {
			d.MaxTier = *jc.MaxTier
		}
		if jc.Order != nil {
			d.Order = *jc.Order
		}
		if d.Profile == "" {
			d.Profile = DefaultJobProfile
		}
		if err := d.Validate(); err != nil {
			return nil, errors.Wrapf(err, "jobs[%d]", i)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// TimeProfiles converts [profiles.<name>] tables, sorted by name.
func (c *Config) TimeProfiles() ([]profile.TimeProfile, error) {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]profile.TimeProfile, 0, len(names))
	for _, name := range names {
		pc := c.Profiles[name]
		standard, err := profile.NewHourSet(pc.Standard...)
		if err != nil {
			return nil, errors.Wrapf(err, "profiles.%s.standard", name)
		}
		weekend, err := profile.NewHourSet(pc.Weekend...)
		if err != nil {
			return nil, errors.Wrapf(err, "profiles.%s.weekend", name)
		}
		out = append(out, profile.TimeProfile{
			Name: name,
			Blocked: map[calendar.DayType]profile.HourSet{
				calendar.Standard: standard,
				calendar.Weekend:  weekend,
			},
		})
	}
	return out, nil
}

// Gate returns the time profile gate with built-ins plus configured profiles.
// Invalid profiles are left out and reported through the error.
func (c *Config) Gate() (*profile.Gate, error) {
	profiles, err := c.TimeProfiles()
	return profile.NewGate(profiles...), err
}

// Holidays returns the holiday table: the Lucerne defaults when enabled,
// followed by the configured holidays.
func (c *Config) Holidays() []calendar.Holiday {
	table := []calendar.Holiday{}
	if c.Calendar.DefaultHolidays {
		table = append(table, calendar.LucerneHolidays...)
	}
	for _, h := range c.Calendar.Holidays {
		table = append(table, calendar.Holiday{Month: time.Month(h.Month), Day: h.Day, Name: h.Name})
	}
	return table
}

// Resolver returns the day-type resolver for the configured holidays.
func (c *Config) Resolver() *calendar.Resolver {
	return calendar.NewResolver(c.Holidays())
}
