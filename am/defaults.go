package am

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/gridpulse/errors"
)

// Built-in defaults, mirroring the constants gridpulse schedules with.
const (
	DefaultStoragePath      = "/mnt/user/appdata/gridpulse"
	DefaultHardCap          = 6.0
	DefaultTimezone         = "Europe/Zurich"
	DefaultLockFile         = "/tmp/gridpulse.lock"
	DefaultStateDB          = "gridpulse.db"
	DefaultPollIntervalMS   = 1000
	DefaultHorizonDays      = 2
	DefaultTolerance        = 0.1
	DefaultMissingPenalty   = 5.0
	DefaultFirstRunHours    = 48
	DefaultRuntimeFloorMins = 5
	DefaultDiskThreshold    = 90.0
	DefaultLogTheme         = "everforest"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Planner defaults
	v.SetDefault("planner.storage_path", DefaultStoragePath)
	v.SetDefault("planner.hard_cap", DefaultHardCap)
	v.SetDefault("planner.timezone", DefaultTimezone)

	// Forecast (CKW) defaults
	v.SetDefault("forecast.api_url", "https://e-ckw-public-data.de-c1.eu1.cloudhub.io/api/v1/netzinformationen/energie/dynamische-preise")
	v.SetDefault("forecast.tariff_type", "grid_usage")
	v.SetDefault("forecast.tariff_name", "home_dynamic")
	v.SetDefault("forecast.timeout_seconds", 30)
	v.SetDefault("forecast.requests_per_minute", 30)
	v.SetDefault("forecast.breaker_failures", 3)
	v.SetDefault("forecast.breaker_cooldown_seconds", 300)

	// Executor defaults
	v.SetDefault("executor.dry_run", false)
	v.SetDefault("executor.lock_file", DefaultLockFile)
	v.SetDefault("executor.state_db", DefaultStateDB)
	v.SetDefault("executor.poll_interval_ms", DefaultPollIntervalMS)
	v.SetDefault("executor.horizon_days", DefaultHorizonDays)
	v.SetDefault("executor.tolerance", DefaultTolerance)
	v.SetDefault("executor.missing_penalty", DefaultMissingPenalty)
	v.SetDefault("executor.first_run_window_hours", DefaultFirstRunHours)
	v.SetDefault("executor.min_runtime_floor_minutes", DefaultRuntimeFloorMins)
	v.SetDefault("executor.shell", true)
	v.SetDefault("executor.now_override", "")
	v.SetDefault("executor.disk.path", "")
	v.SetDefault("executor.disk.threshold_percent", DefaultDiskThreshold)
	v.SetDefault("executor.disk.emergency_command", "")

	// Calendar defaults
	v.SetDefault("calendar.default_holidays", true)

	// Log defaults
	v.SetDefault("log.theme", DefaultLogTheme)
	v.SetDefault("log.json", false)

	v.SetDefault("metrics.textfile_dir", "")
}

// BindEnvVars explicitly binds settings commonly overridden per host
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("planner.storage_path", "GRIDPULSE_STORAGE_PATH")
	v.BindEnv("executor.state_db", "GRIDPULSE_STATE_DB")
	v.BindEnv("executor.dry_run", "GRIDPULSE_DRY_RUN")
	v.BindEnv("executor.now_override", "GRIDPULSE_NOW")
}

// Location returns the tariff timezone, falling back to the local zone when
// the name cannot be loaded.
func (c *Config) Location() *time.Location {
	name := c.Planner.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// PollInterval returns the completion poll interval
func (c *Config) PollInterval() time.Duration {
	if c.Executor.PollIntervalMS <= 0 {
		return DefaultPollIntervalMS * time.Millisecond
	}
	return time.Duration(c.Executor.PollIntervalMS) * time.Millisecond
}

// FirstRunWindow returns how far ahead a never-run job searches
func (c *Config) FirstRunWindow() time.Duration {
	return hours(c.Executor.FirstRunWindowHours)
}

// RuntimeFloor returns the shortest learned average that is trusted
func (c *Config) RuntimeFloor() time.Duration {
	return minutes(c.Executor.MinRuntimeFloorMinutes)
}

// ForecastTimeout returns the HTTP timeout for forecast downloads
func (c *Config) ForecastTimeout() time.Duration {
	return time.Duration(c.Forecast.TimeoutSeconds) * time.Second
}

// BreakerCooldown returns how long an open breaker rejects calls
func (c *Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Forecast.BreakerCooldownSeconds) * time.Second
}

// NowLayout is the format of executor.now_override and --now.
const NowLayout = "2006-01-02 15:04"

// Now returns the override instant in loc, or ok=false when none is set.
func (c *Config) Now(loc *time.Location) (time.Time, bool, error) {
	if c.Executor.NowOverride == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(NowLayout, c.Executor.NowOverride, loc)
	if err != nil {
		return time.Time{}, false, errors.Newf("executor.now_override %q: want %q", c.Executor.NowOverride, NowLayout)
	}
	return t, true, nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Planner: {StoragePath: %s, HardCap: %.2f}, Executor: {DryRun: %t, StateDB: %s}, Jobs: %d}",
		c.Planner.StoragePath, c.Planner.HardCap, c.Executor.DryRun, c.Executor.StateDB, len(c.Jobs))
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
