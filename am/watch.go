package am

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// ReloadCallback receives the freshly loaded and validated config, or the
// error that prevented it.
type ReloadCallback func(*Config, error)

// ConfigWatcher reloads the configuration whenever one of the config files
// changes. Directories are watched rather than files so that editors which
// save by rename are still noticed.
type ConfigWatcher struct {
	files    map[string]bool
	watcher  *fsnotify.Watcher
	callback ReloadCallback
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher watches the given files. Missing files are watched too:
// creating one triggers a reload.
func NewConfigWatcher(paths []string, callback ReloadCallback) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	cw := &ConfigWatcher{
		files:    make(map[string]bool, len(paths)),
		watcher:  watcher,
		callback: callback,
		debounce: DefaultDebounce,
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		cw.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	watched := 0
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Debugw("Not watching config directory", logger.FieldPath, dir, logger.FieldError, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return nil, errors.WithHint(
			errors.New("no config directory can be watched"),
			"create one of the files listed by 'gridpulse am where'")
	}
	return cw, nil
}

// Run delivers reloads until ctx is done.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			cw.mu.Lock()
			if cw.timer != nil {
				cw.timer.Stop()
			}
			cw.mu.Unlock()
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !cw.files[name] || isBackupFile(name) {
				continue
			}
			logger.Debugw("Config change detected", logger.FieldPath, name, "op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("Config watcher error", logger.FieldError, err)
		}
	}
}

func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	Reset()
	cfg, err := Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		cw.callback(nil, err)
		return
	}
	cw.callback(cfg, nil)
}

// isBackupFile reports whether path is one of the .back1-3 rotations.
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back")
}
