package am

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reload struct {
	cfg *Config
	err error
}

func waitForReload(t *testing.T, reloads <-chan reload, match func(reload) bool) reload {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-reloads:
			if match(r) {
				return r
			}
		case <-deadline:
			t.Fatal("no matching reload")
			return reload{}
		}
	}
}

func TestConfigWatcherReloadsOnChange(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdirForTest(t, t.TempDir())

	path := filepath.Join(t.TempDir(), "gridpulse.toml")
	writeFile(t, path, "[planner]\nhard_cap = 6.0\n")
	SetConfigFile(path)
	defer SetConfigFile("")

	reloads := make(chan reload, 16)
	cw, err := NewConfigWatcher([]string{path}, func(cfg *Config, err error) {
		select {
		case reloads <- reload{cfg, err}:
		default:
		}
	})
	require.NoError(t, err)
	cw.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cw.Run(ctx) }()

	// A save can arrive as several events; wait for the reload that sees it.
	writeFile(t, path, "[planner]\nhard_cap = 8.5\n")
	r := waitForReload(t, reloads, func(r reload) bool { return r.err == nil && r.cfg.Planner.HardCap == 8.5 })
	assert.Equal(t, 8.5, r.cfg.Planner.HardCap)

	writeFile(t, path, "[planner]\nhard_cap = -1\n")
	r = waitForReload(t, reloads, func(r reload) bool { return r.err != nil })
	assert.Contains(t, r.err.Error(), "planner.hard_cap")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestConfigWatcherNeedsAWatchableDirectory(t *testing.T) {
	_, err := NewConfigWatcher([]string{"/nonexistent/gridpulse/am.toml"}, func(*Config, error) {})
	assert.Error(t, err)
}

func TestIsBackupFile(t *testing.T) {
	assert.True(t, isBackupFile("/etc/gridpulse/config.toml.back2"))
	assert.False(t, isBackupFile("/etc/gridpulse/config.toml"))
}
