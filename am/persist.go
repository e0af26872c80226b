package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// DefaultConfig returns the built-in configuration with one example job.
func DefaultConfig() *Config {
	maxTier := 5
	order := 1
	return &Config{
		Planner: PlannerConfig{
			StoragePath: DefaultStoragePath,
			HardCap:     DefaultHardCap,
			Timezone:    DefaultTimezone,
		},
		Forecast: ForecastConfig{
			APIURL:                 "https://e-ckw-public-data.de-c1.eu1.cloudhub.io/api/v1/netzinformationen/energie/dynamische-preise",
			TariffType:             "grid_usage",
			TariffName:             "home_dynamic",
			TimeoutSeconds:         30,
			RequestsPerMinute:      30,
			BreakerFailures:        3,
			BreakerCooldownSeconds: 300,
		},
		Executor: ExecutorConfig{
			LockFile:               DefaultLockFile,
			StateDB:                filepath.Join(DefaultStoragePath, DefaultStateDB),
			PollIntervalMS:         DefaultPollIntervalMS,
			HorizonDays:            DefaultHorizonDays,
			Tolerance:              DefaultTolerance,
			MissingPenalty:         DefaultMissingPenalty,
			FirstRunWindowHours:    DefaultFirstRunHours,
			MinRuntimeFloorMinutes: DefaultRuntimeFloorMins,
			Shell:                  true,
			Disk: DiskConfig{
				Path:             "/mnt/cache",
				ThresholdPercent: DefaultDiskThreshold,
				EmergencyCommand: "/usr/local/sbin/mover",
			},
		},
		Calendar: CalendarConfig{DefaultHolidays: true},
		Jobs: []JobConfig{{
			ID:                "emby_cache",
			Command:           "/usr/bin/python3 /mnt/user/system/scripts/embycache_v2/embycache_run.py",
			InitialRuntimeMin: 15,
			MinIntervalHours:  20,
			MaxIntervalHours:  28,
			MaxTier:           &maxTier,
			ProfileMode:       "IGNORE_TIME",
			Group:             "media",
			Order:             &order,
		}},
		Log: LogConfig{Theme: DefaultLogTheme},
	}
}

// WriteConfig encodes cfg as TOML to path, rotating backups of any existing file.
func WriteConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
