package am

// Config represents the gridpulse configuration
type Config struct {
	Planner  PlannerConfig            `mapstructure:"planner" toml:"planner"`
	Forecast ForecastConfig           `mapstructure:"forecast" toml:"forecast"`
	Executor ExecutorConfig           `mapstructure:"executor" toml:"executor"`
	Calendar CalendarConfig           `mapstructure:"calendar" toml:"calendar"`
	Profiles map[string]ProfileConfig `mapstructure:"profiles" toml:"profiles,omitempty"`
	Jobs     []JobConfig              `mapstructure:"jobs" toml:"jobs,omitempty"`
	Log      LogConfig                `mapstructure:"log" toml:"log"`
	Metrics  MetricsConfig            `mapstructure:"metrics" toml:"metrics"`
}

// PlannerConfig configures schedule generation
type PlannerConfig struct {
	StoragePath string  `mapstructure:"storage_path" toml:"storage_path"` // Directory holding YYYY-MM-DD.json schedules
	HardCap     float64 `mapstructure:"hard_cap" toml:"hard_cap"`         // Rp/kWh above which a slot is blocked
	Timezone    string  `mapstructure:"timezone" toml:"timezone"`         // IANA zone of the tariff (default: Europe/Zurich)
}

// ForecastConfig configures the CKW price API
type ForecastConfig struct {
	APIURL                 string  `mapstructure:"api_url" toml:"api_url"`
	TariffType             string  `mapstructure:"tariff_type" toml:"tariff_type"`
	TariffName             string  `mapstructure:"tariff_name" toml:"tariff_name"`
	TimeoutSeconds         int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerMinute      float64 `mapstructure:"requests_per_minute" toml:"requests_per_minute"`           // 0 = unlimited
	BreakerFailures        int     `mapstructure:"breaker_failures" toml:"breaker_failures"`                 // Consecutive failures that open the breaker
	BreakerCooldownSeconds int     `mapstructure:"breaker_cooldown_seconds" toml:"breaker_cooldown_seconds"` // How long the breaker stays open
}

// ExecutorConfig configures evaluation passes
type ExecutorConfig struct {
	DryRun                 bool       `mapstructure:"dry_run" toml:"dry_run"`
	LockFile               string     `mapstructure:"lock_file" toml:"lock_file"`
	StateDB                string     `mapstructure:"state_db" toml:"state_db"`
	PollIntervalMS         int        `mapstructure:"poll_interval_ms" toml:"poll_interval_ms"`
	HorizonDays            int        `mapstructure:"horizon_days" toml:"horizon_days"`
	Tolerance              float64    `mapstructure:"tolerance" toml:"tolerance"`             // Rp a start may cost above the best window
	MissingPenalty         float64    `mapstructure:"missing_penalty" toml:"missing_penalty"` // Rp charged per checkpoint without data
	FirstRunWindowHours    float64    `mapstructure:"first_run_window_hours" toml:"first_run_window_hours"`
	MinRuntimeFloorMinutes float64    `mapstructure:"min_runtime_floor_minutes" toml:"min_runtime_floor_minutes"`
	Shell                  bool       `mapstructure:"shell" toml:"shell"`               // Run commands through /bin/sh -c
	NowOverride            string     `mapstructure:"now_override" toml:"now_override"` // "YYYY-MM-DD HH:MM", for simulation
	Disk                   DiskConfig `mapstructure:"disk" toml:"disk"`
}

// DiskConfig configures the capacity guard run before every pass
type DiskConfig struct {
	Path             string  `mapstructure:"path" toml:"path"` // Empty disables the check
	ThresholdPercent float64 `mapstructure:"threshold_percent" toml:"threshold_percent"`
	EmergencyCommand string  `mapstructure:"emergency_command" toml:"emergency_command"`
}

// CalendarConfig configures the holiday table
type CalendarConfig struct {
	DefaultHolidays bool            `mapstructure:"default_holidays" toml:"default_holidays"` // Include the Lucerne fixed holidays
	Holidays        []HolidayConfig `mapstructure:"holidays" toml:"holidays,omitempty"`
}

// HolidayConfig is one fixed-date public holiday
type HolidayConfig struct {
	Month int    `mapstructure:"month" toml:"month"`
	Day   int    `mapstructure:"day" toml:"day"`
	Name  string `mapstructure:"name" toml:"name"`
}

// ProfileConfig lists blocked hours per day type
type ProfileConfig struct {
	Standard []int `mapstructure:"standard" toml:"standard,omitempty"`
	Weekend  []int `mapstructure:"weekend" toml:"weekend,omitempty"`
}

// JobConfig declares one recurring job
type JobConfig struct {
	ID                string  `mapstructure:"id" toml:"id"`
	Command           string  `mapstructure:"command" toml:"command"`
	InitialRuntimeMin float64 `mapstructure:"initial_runtime_min" toml:"initial_runtime_min"`
	MinIntervalHours  float64 `mapstructure:"min_interval_hours" toml:"min_interval_hours"`
	MaxIntervalHours  float64 `mapstructure:"max_interval_hours" toml:"max_interval_hours"`
	MaxTier           *int    `mapstructure:"max_tier" toml:"max_tier,omitempty"` // nil = 20 (any non-blocked slot)
	ProfileMode       string  `mapstructure:"profile_mode" toml:"profile_mode"`   // Time profile name (default: IGNORE_TIME)
	Group             string  `mapstructure:"group" toml:"group"`
	Order             *int    `mapstructure:"order" toml:"order,omitempty"` // nil = 99
}

// LogConfig configures console output
type LogConfig struct {
	Theme string `mapstructure:"theme" toml:"theme"` // everforest, gruvbox, plain
	JSON  bool   `mapstructure:"json" toml:"json"`
}

// Job defaults applied when a field is omitted
const (
	DefaultJobOrder   = 99
	DefaultJobProfile = "IGNORE_TIME"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// MetricsConfig configures the Prometheus textfile export
type MetricsConfig struct {
	TextfileDir string `mapstructure:"textfile_dir" toml:"textfile_dir"` // node_exporter textfile collector directory; empty disables
}
