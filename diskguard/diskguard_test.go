package diskguard

import (
	"context"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/errors"
)

func fixedUsage(percent float64, err error) UsageFunc {
	return func(ctx context.Context, path string) (*disk.UsageStat, error) {
		if err != nil {
			return nil, err
		}
		return &disk.UsageStat{Path: path, UsedPercent: percent}, nil
	}
}

func TestCritical(t *testing.T) {
	tests := []struct {
		name     string
		percent  float64
		critical bool
	}{
		{"plenty of space", 42, false},
		{"exactly at threshold", 90, false},
		{"above threshold", 90.5, true},
		{"full", 100, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor("/mnt/cache", DefaultThresholdPercent)
			m.usage = fixedUsage(tt.percent, nil)

			critical, used, err := m.Critical(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.critical, critical)
			assert.Equal(t, tt.percent, used)
		})
	}
}

func TestCriticalFailsOpen(t *testing.T) {
	m := NewMonitor("/mnt/cache", 80)
	m.usage = fixedUsage(0, errors.New("no such file or directory"))

	critical, _, err := m.Critical(context.Background())
	require.Error(t, err)
	assert.False(t, critical)
	assert.Contains(t, err.Error(), "/mnt/cache")
}

func TestDisabledWithoutPath(t *testing.T) {
	m := NewMonitor("", 0)
	assert.Equal(t, DefaultThresholdPercent, m.ThresholdPercent)

	critical, _, err := m.Critical(context.Background())
	assert.NoError(t, err)
	assert.False(t, critical)
}

func TestRealFilesystem(t *testing.T) {
	m := NewMonitor(t.TempDir(), 100)
	critical, used, err := m.Critical(context.Background())
	require.NoError(t, err)
	assert.False(t, critical, "nothing is above 100%")
	assert.GreaterOrEqual(t, used, 0.0)
}
