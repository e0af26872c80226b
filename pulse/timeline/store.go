package timeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/tier"
)

// ErrNoSchedule is returned when no schedule exists for a date.
var ErrNoSchedule = errors.New("no schedule for date")

// ScheduleStore persists one DailySchedule per calendar date.
type ScheduleStore interface {
	Load(date time.Time) (*tier.DailySchedule, error)
	Save(s *tier.DailySchedule) error
	Exists(date time.Time) bool
	Cleanup(before time.Time) ([]time.Time, error)
	Dates() ([]time.Time, error)
}

// FileStore keeps schedules as YYYY-MM-DD.json files in one directory.
type FileStore struct {
	dir    string
	loc    *time.Location
	logger *zap.SugaredLogger
}

// NewFileStore creates a store rooted at dir. Naive timestamps and file
// dates are interpreted in loc.
func NewFileStore(dir string, loc *time.Location, log *zap.SugaredLogger) *FileStore {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = logger.Logger
	}
	return &FileStore{dir: dir, loc: loc, logger: log}
}

// Dir returns the storage directory.
func (fs *FileStore) Dir() string { return fs.dir }

// Path returns the file that holds the schedule for date.
func (fs *FileStore) Path(date time.Time) string {
	return filepath.Join(fs.dir, date.In(fs.loc).Format(DateLayout)+".json")
}

// Load reads the schedule for date. A missing file wraps ErrNoSchedule.
func (fs *FileStore) Load(date time.Time) (*tier.DailySchedule, error) {
	path := fs.Path(date)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNoSchedule, "%s", date.In(fs.loc).Format(DateLayout))
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	y, m, d := date.In(fs.loc).Date()
	s, skipped, err := decodeSchedule(data, time.Date(y, m, d, 0, 0, 0, 0, fs.loc), fs.loc)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	if skipped > 0 {
		fs.logger.Warnw("Skipped malformed timeline records",
			logger.FieldPath, path,
			logger.FieldCount, skipped,
		)
	}
	return s, nil
}

// Save writes s atomically: the document goes to a temp file in the same
// directory which then replaces the target.
func (fs *FileStore) Save(s *tier.DailySchedule) error {
	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create schedule directory %s", fs.dir)
	}

	data, err := encodeSchedule(s)
	if err != nil {
		return errors.Wrap(err, "failed to encode schedule")
	}

	target := fs.Path(s.Date)
	tmp, err := os.CreateTemp(fs.dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "failed to chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return errors.Wrapf(err, "failed to move schedule into place at %s", target)
	}
	return nil
}

// Exists reports whether a schedule file is present for date.
func (fs *FileStore) Exists(date time.Time) bool {
	_, err := os.Stat(fs.Path(date))
	return err == nil
}

// Dates lists the dates with a schedule file, ascending. Files whose name is
// not a date are ignored.
func (fs *FileStore) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list %s", fs.dir)
	}

	var dates []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		d, err := time.ParseInLocation(DateLayout, strings.TrimSuffix(name, ".json"), fs.loc)
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Cleanup deletes every schedule dated strictly before the calendar day of
// before and returns the removed dates.
func (fs *FileStore) Cleanup(before time.Time) ([]time.Time, error) {
	dates, err := fs.Dates()
	if err != nil {
		return nil, err
	}

	y, m, d := before.In(fs.loc).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, fs.loc)

	var removed []time.Time
	for _, date := range dates {
		if !date.Before(cutoff) {
			continue
		}
		if err := os.Remove(fs.Path(date)); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrapf(err, "failed to remove schedule for %s", date.Format(DateLayout))
		}
		removed = append(removed, date)
	}
	return removed, nil
}
