package am

import (
	"strings"
	"time"

	"github.com/teranos/gridpulse/errors"
)

// Validate checks that the configuration is valid. Failures match
// errors.ErrInvalidRequest.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return errors.Mark(err, errors.ErrInvalidRequest)
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Planner.StoragePath) == "" {
		return errors.New("planner.storage_path cannot be empty")
	}
	if c.Planner.HardCap <= 0 {
		return errors.Newf("planner.hard_cap must be > 0, got %f", c.Planner.HardCap)
	}
	if c.Planner.Timezone != "" {
		if _, err := time.LoadLocation(c.Planner.Timezone); err != nil {
			return errors.Wrapf(err, "planner.timezone %q", c.Planner.Timezone)
		}
	}

	// Forecast: 0 requests_per_minute = unlimited, negative = invalid
	if c.Forecast.TimeoutSeconds <= 0 {
		return errors.Newf("forecast.timeout_seconds must be > 0, got %d", c.Forecast.TimeoutSeconds)
	}
	if c.Forecast.RequestsPerMinute < 0 {
		return errors.Newf("forecast.requests_per_minute must be >= 0, got %f", c.Forecast.RequestsPerMinute)
	}
	if c.Forecast.BreakerFailures < 1 {
		return errors.Newf("forecast.breaker_failures must be >= 1, got %d", c.Forecast.BreakerFailures)
	}

	if c.Executor.PollIntervalMS <= 0 {
		return errors.Newf("executor.poll_interval_ms must be > 0, got %d", c.Executor.PollIntervalMS)
	}
	if c.Executor.HorizonDays < 0 {
		return errors.Newf("executor.horizon_days must be >= 0, got %d", c.Executor.HorizonDays)
	}
	if c.Executor.Tolerance < 0 {
		return errors.Newf("executor.tolerance must be >= 0, got %f", c.Executor.Tolerance)
	}
	if c.Executor.MissingPenalty < 0 {
		return errors.Newf("executor.missing_penalty must be >= 0, got %f", c.Executor.MissingPenalty)
	}
	if c.Executor.FirstRunWindowHours <= 0 {
		return errors.Newf("executor.first_run_window_hours must be > 0, got %f", c.Executor.FirstRunWindowHours)
	}
	if c.Executor.MinRuntimeFloorMinutes < 0 {
		return errors.Newf("executor.min_runtime_floor_minutes must be >= 0, got %f", c.Executor.MinRuntimeFloorMinutes)
	}
	if _, _, err := c.Now(time.UTC); err != nil {
		return err
	}
	if t := c.Executor.Disk.ThresholdPercent; t <= 0 || t > 100 {
		return errors.Newf("executor.disk.threshold_percent must be in (0, 100], got %f", t)
	}

	for i, h := range c.Calendar.Holidays {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 || h.Day > 31 {
			return errors.Newf("calendar.holidays[%d]: invalid date %02d-%02d", i, h.Month, h.Day)
		}
	}

	if _, err := c.TimeProfiles(); err != nil {
		return err
	}

	defs, err := c.JobDefinitions()
	if err != nil {
		return err
	}
	gate, _ := c.Gate()
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if seen[d.ID] {
			return errors.Newf("jobs: duplicate id %q", d.ID)
		}
		seen[d.ID] = true
		if !gate.Known(d.Profile) {
			return errors.WithHintf(
				errors.Newf("job %q: unknown profile_mode %q", d.ID, d.Profile),
				"known profiles: %s", strings.Join(gate.Names(), ", "))
		}
	}
	return nil
}
