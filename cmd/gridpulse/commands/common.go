package commands

import (
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/db"
	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/metrics"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// loadConfig loads and validates the effective configuration.
func loadConfig() (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(
			errors.Wrap(err, "invalid configuration"),
			"run 'gridpulse am validate' for details")
	}
	return cfg, nil
}

// currentTime returns the configured override or the wall clock, in loc.
func currentTime(cfg *am.Config, loc *time.Location) (time.Time, error) {
	now, ok, err := cfg.Now(loc)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Now().In(loc), nil
	}
	return now, nil
}

func scheduleStore(cfg *am.Config, loc *time.Location) *timeline.FileStore {
	return timeline.NewFileStore(cfg.Planner.StoragePath, loc, logger.Logger.Named("timeline"))
}

// stateDBPath resolves executor.state_db against the storage path. Dry runs
// learn into a sibling database so real history stays untouched.
func stateDBPath(cfg *am.Config, dryRun bool) string {
	path := cfg.Executor.StateDB
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Planner.StoragePath, path)
	}
	if dryRun {
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + ".dryrun" + ext
	}
	return path
}

func openStateDB(cfg *am.Config, dryRun bool) (*sql.DB, error) {
	path := stateDBPath(cfg, dryRun)
	database, err := db.OpenWithMigrations(path, logger.Logger.Named("db"))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open state database %s", path)
	}
	return database, nil
}

// parseDate accepts YYYY-MM-DD, "today" and "tomorrow" relative to now.
func parseDate(s string, now time.Time) (time.Time, error) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	}
	date, err := time.ParseInLocation(timeline.DateLayout, s, now.Location())
	if err != nil {
		return time.Time{}, errors.WithHint(
			errors.Newf("invalid date %q", s),
			"use YYYY-MM-DD, today, tomorrow or yesterday")
	}
	return date, nil
}

// writeMetrics exports rec as <metrics.textfile_dir>/gridpulse_<name>.prom.
// Export failures are logged; they never fail the command.
func writeMetrics(cfg *am.Config, name string, rec *metrics.Recorder) {
	if cfg.Metrics.TextfileDir == "" {
		return
	}
	path := filepath.Join(cfg.Metrics.TextfileDir, "gridpulse_"+name+".prom")
	if err := rec.WriteTextfile(path); err != nil {
		logger.Warnw("Failed to export metrics", logger.FieldPath, path, logger.FieldError, err)
	}
}
