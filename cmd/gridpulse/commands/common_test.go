package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/errors"
)

func TestStateDBPath(t *testing.T) {
	cfg := &am.Config{}
	cfg.Planner.StoragePath = "/mnt/user/appdata/gridpulse"
	cfg.Executor.StateDB = "gridpulse.db"

	assert.Equal(t, "/mnt/user/appdata/gridpulse/gridpulse.db", stateDBPath(cfg, false))
	assert.Equal(t, "/mnt/user/appdata/gridpulse/gridpulse.dryrun.db", stateDBPath(cfg, true))

	cfg.Executor.StateDB = "/var/lib/gridpulse/state.sqlite"
	assert.Equal(t, "/var/lib/gridpulse/state.sqlite", stateDBPath(cfg, false))
	assert.Equal(t, "/var/lib/gridpulse/state.dryrun.sqlite", stateDBPath(cfg, true))
}

func TestReloadProblem(t *testing.T) {
	invalid := errors.Mark(errors.New("planner.hard_cap must be > 0, got -1.000000"), errors.ErrInvalidRequest)
	assert.Equal(t, "Configuration is invalid: planner.hard_cap must be > 0, got -1.000000", reloadProblem(invalid))

	broken := errors.Wrap(errors.New("toml: line 2: expected '='"), "failed to merge config")
	assert.Contains(t, reloadProblem(broken), "Configuration could not be loaded")
}

func TestParseDate(t *testing.T) {
	zurich, err := time.LoadLocation("Europe/Zurich")
	require.NoError(t, err)
	now := time.Date(2026, 3, 3, 14, 30, 0, 0, zurich)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Date(2026, 3, 3, 0, 0, 0, 0, zurich)},
		{"today", time.Date(2026, 3, 3, 0, 0, 0, 0, zurich)},
		{"Tomorrow", time.Date(2026, 3, 4, 0, 0, 0, 0, zurich)},
		{"yesterday", time.Date(2026, 3, 2, 0, 0, 0, 0, zurich)},
		{"2026-12-25", time.Date(2026, 12, 25, 0, 0, 0, 0, zurich)},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%q: got %s", tt.in, got)
	}

	_, err = parseDate("03.03.2026", now)
	assert.Error(t, err)
}

func TestCurrentTimeOverride(t *testing.T) {
	cfg := &am.Config{}
	cfg.Executor.NowOverride = "2026-03-03 14:30"

	now, err := currentTime(cfg, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC), now)

	cfg.Executor.NowOverride = "soon"
	_, err = currentTime(cfg, time.UTC)
	assert.Error(t, err)
}
