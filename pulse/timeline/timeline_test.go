package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/tier"
)

var base = time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

func slot(offset time.Duration, price float64) tier.PriceSlot {
	return tier.PriceSlot{Start: base.Add(offset), Price: price, Tier: 1}
}

func TestNewMergesFirstWins(t *testing.T) {
	tl := New(
		[]tier.PriceSlot{slot(15*time.Minute, 2), slot(0, 1)},
		[]tier.PriceSlot{slot(0, 9), slot(30*time.Minute, 3)},
	)

	slots := tl.Slots()
	require.Len(t, slots, 3)
	assert.Equal(t, 1.0, slots[0].Price, "earlier run keeps duplicate start")
	assert.Equal(t, 2.0, slots[1].Price)
	assert.Equal(t, 3.0, slots[2].Price)
}

func TestNewMergesAcrossLocations(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	tl := New(
		[]tier.PriceSlot{{Start: base, Price: 1}},
		[]tier.PriceSlot{{Start: base.In(cet), Price: 2}},
	)
	assert.Equal(t, 1, tl.Len())
}

func TestCurrent(t *testing.T) {
	tl := New([]tier.PriceSlot{slot(0, 1), slot(15*time.Minute, 2)})

	tests := []struct {
		name  string
		now   time.Time
		want  float64
		found bool
	}{
		{"exactly on a slot", base, 1, true},
		{"slot starts shortly after now", base.Add(-14 * time.Minute), 1, true},
		{"slot started in the past", base.Add(5 * time.Minute), 2, true},
		{"fifteen minutes ahead is too far", base.Add(-15 * time.Minute), 0, false},
		{"beyond the data", base.Add(20 * time.Minute), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := tl.Current(tt.now)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, s.Price)
		})
	}

	_, ok := (&Timeline{}).Current(base)
	assert.False(t, ok)
}

func TestNearest(t *testing.T) {
	tl := New([]tier.PriceSlot{slot(0, 1), slot(15*time.Minute, 2), slot(32*time.Minute, 3)})

	s, ok := tl.Nearest(base.Add(4*time.Minute), 5*time.Minute)
	require.True(t, ok)
	assert.Equal(t, 1.0, s.Price)

	s, ok = tl.Nearest(base.Add(30*time.Minute), 5*time.Minute)
	require.True(t, ok)
	assert.Equal(t, 3.0, s.Price, "misaligned feed slot still matches")

	_, ok = tl.Nearest(base.Add(-6*time.Minute), 5*time.Minute)
	assert.False(t, ok)

	// 10:07:30 is equidistant from 10:00 and 10:15
	tie := New([]tier.PriceSlot{slot(0, 1), slot(15*time.Minute, 2)})
	s, ok = tie.Nearest(base.Add(7*time.Minute+30*time.Second), 10*time.Minute)
	require.True(t, ok)
	assert.Equal(t, 1.0, s.Price, "earlier slot wins a tie")
}

func TestBetween(t *testing.T) {
	tl := New([]tier.PriceSlot{slot(0, 1), slot(15*time.Minute, 2), slot(30*time.Minute, 3), slot(45*time.Minute, 4)})

	got := tl.Between(base.Add(15*time.Minute), base.Add(30*time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Price)
	assert.Equal(t, 3.0, got[1].Price)

	assert.Empty(t, tl.Between(base.Add(time.Hour), base))
	assert.Len(t, tl.Between(base.Add(-time.Hour), base.Add(time.Hour)), 4)
}

type memStore struct {
	days map[string]*tier.DailySchedule
	errs map[string]error
}

func (m *memStore) Load(date time.Time) (*tier.DailySchedule, error) {
	key := date.Format(DateLayout)
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if s, ok := m.days[key]; ok {
		return s, nil
	}
	return nil, ErrNoSchedule
}

func (m *memStore) Save(s *tier.DailySchedule) error { return nil }
func (m *memStore) Exists(date time.Time) bool { return false }
func (m *memStore) Cleanup(before time.Time) ([]time.Time, error) { return nil, nil }
func (m *memStore) Dates() ([]time.Time, error) { return nil, nil }

func TestLoadSkipsUnavailableDays(t *testing.T) {
	day0 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	store := &memStore{
		days: map[string]*tier.DailySchedule{
			"2026-03-03": {Timeline: []tier.PriceSlot{{Start: day0.Add(10 * time.Hour), Price: 1}}},
			"2026-03-05": {Timeline: []tier.PriceSlot{{Start: day0.Add(50 * time.Hour), Price: 3}}},
			"2026-03-06": {Timeline: []tier.PriceSlot{{Start: day0.Add(74 * time.Hour), Price: 4}}},
		},
		errs: map[string]error{"2026-03-04": errors.New("corrupt")},
	}

	tl := Load(context.Background(), store, day0.Add(9*time.Hour), 2, nil)

	assert.Equal(t, 2, tl.Len(), "day 4 failed and day 6 is beyond the horizon")
	days := tl.Days()
	require.Len(t, days, 2)
	assert.Equal(t, 3, days[0].Day())
	assert.Equal(t, 5, days[1].Day())
}

func TestLoadStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tl := Load(ctx, &memStore{}, base, 3, nil)
	assert.True(t, tl.Empty())
}
