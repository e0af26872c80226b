// Package lock provides the single-instance guard for an evaluation pass.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/teranos/gridpulse/errors"
)

// DefaultPath is where the pass lock lives unless configured otherwise.
const DefaultPath = "/tmp/gridpulse.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock is an acquired advisory lock. The file is left in place on release.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive, non-blocking flock on path. It fails with
// ErrLocked when another holder exists.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create lock directory for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open lock file %s", path)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.Wrapf(ErrLocked, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to lock %s", path)
	}

	// Best effort: record the holder for operators.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	return &Lock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return errors.Wrapf(unlockErr, "failed to unlock %s", l.path)
	}
	return errors.Wrapf(closeErr, "failed to close %s", l.path)
}
