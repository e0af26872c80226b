// Package diskguard detects a critically full disk before an evaluation pass.
package diskguard

import (
	"context"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/teranos/gridpulse/errors"
)

// DefaultThresholdPercent is the used-space percentage considered critical.
const DefaultThresholdPercent = 90.0

// UsageFunc reports filesystem usage for a path.
type UsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// Monitor compares the usage of one filesystem with a threshold.
type Monitor struct {
	Path             string
	ThresholdPercent float64

	usage UsageFunc
}

// NewMonitor watches the filesystem holding path.
func NewMonitor(path string, thresholdPercent float64) *Monitor {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThresholdPercent
	}
	return &Monitor{Path: path, ThresholdPercent: thresholdPercent, usage: disk.UsageWithContext}
}

// Critical reports whether used space is strictly above the threshold, and the
// current used percentage. On error the disk is reported as not critical.
func (m *Monitor) Critical(ctx context.Context) (bool, float64, error) {
	if m.Path == "" {
		return false, 0, nil
	}
	stat, err := m.usage(ctx, m.Path)
	if err != nil {
		return false, 0, errors.Wrapf(err, "failed to read disk usage of %s", m.Path)
	}
	return stat.UsedPercent > m.ThresholdPercent, stat.UsedPercent, nil
}
