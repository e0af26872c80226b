package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/calendar"
	"github.com/teranos/gridpulse/pulse/tier"
	"github.com/teranos/gridpulse/pulse/timeline"
)

type fakeProvider struct {
	prices map[string][]tier.RawPrice
	errs   map[string]error
	calls  []string
}

func (f *fakeProvider) Fetch(ctx context.Context, date time.Time) ([]tier.RawPrice, error) {
	key := date.Format(timeline.DateLayout)
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.prices[key], nil
}

func dayPrices(day time.Time, prices ...float64) []tier.RawPrice {
	raw := make([]tier.RawPrice, len(prices))
	for i, p := range prices {
		raw[i] = tier.RawPrice{Start: day.Add(time.Duration(i) * tier.SlotLength), Price: p}
	}
	return raw
}

func setup(t *testing.T) (*timeline.FileStore, time.Time) {
	t.Helper()
	store := timeline.NewFileStore(t.TempDir(), time.UTC, nil)
	today := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC) // a Wednesday
	return store, today
}

func TestRunSelfHealsMissingToday(t *testing.T) {
	store, today := setup(t)
	tomorrow := today.AddDate(0, 0, 1)
	provider := &fakeProvider{prices: map[string][]tier.RawPrice{
		"2025-03-12": dayPrices(today, 3, 4, 7),
		"2025-03-13": dayPrices(tomorrow, 2, 5),
	}}

	p := New(provider, store, calendar.NewResolver(nil), 6.0, nil)
	report, err := p.Run(context.Background(), today.Add(14*time.Hour))
	require.NoError(t, err)

	assert.True(t, report.OK())
	assert.Equal(t, []string{"2025-03-12", "2025-03-13"}, provider.calls)
	require.Len(t, report.Saved, 2)

	saved, err := store.Load(today)
	require.NoError(t, err)
	require.Len(t, saved.Timeline, 3)
	assert.True(t, saved.Timeline[2].Blocked, "7 Rp is above the 6 Rp cap")
	assert.Equal(t, tier.TierBlocked, saved.Timeline[2].Tier)
	assert.Equal(t, calendar.Standard, saved.DayType)
}

func TestRunOnlyTomorrowWhenTodayExists(t *testing.T) {
	store, today := setup(t)
	require.NoError(t, store.Save(tier.Build(today, dayPrices(today, 1), 6.0, calendar.NewResolver(nil), today)))

	provider := &fakeProvider{prices: map[string][]tier.RawPrice{
		"2025-03-13": dayPrices(today.AddDate(0, 0, 1), 2),
	}}
	p := New(provider, store, calendar.NewResolver(nil), 0, nil)

	report, err := p.Run(context.Background(), today)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-03-13"}, provider.calls)
	assert.Len(t, report.Saved, 1)
}

func TestRunContinuesAfterFailedDay(t *testing.T) {
	store, today := setup(t)
	tomorrow := today.AddDate(0, 0, 1)
	provider := &fakeProvider{
		prices: map[string][]tier.RawPrice{"2025-03-13": dayPrices(tomorrow, 2, 3)},
		errs:   map[string]error{"2025-03-12": errors.New("connection reset")},
	}

	p := New(provider, store, calendar.NewResolver(nil), 6.0, nil)
	report, err := p.Run(context.Background(), today)
	require.NoError(t, err)

	assert.False(t, report.OK())
	require.Contains(t, report.Failed, today)
	assert.Contains(t, report.Failed[today].Error(), "connection reset")
	assert.Equal(t, []time.Time{tomorrow}, report.Saved)
	assert.True(t, store.Exists(tomorrow))
	assert.False(t, store.Exists(today))
}

func TestRunRemovesPastSchedules(t *testing.T) {
	store, today := setup(t)
	resolver := calendar.NewResolver(nil)
	for _, offset := range []int{-3, -1, 0} {
		day := today.AddDate(0, 0, offset)
		require.NoError(t, store.Save(tier.Build(day, dayPrices(day, 1), 6.0, resolver, day)))
	}

	provider := &fakeProvider{prices: map[string][]tier.RawPrice{
		"2025-03-13": dayPrices(today.AddDate(0, 0, 1), 2),
	}}
	p := New(provider, store, resolver, 6.0, nil)

	report, err := p.Run(context.Background(), today.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Len(t, report.Removed, 2)

	dates, err := store.Dates()
	require.NoError(t, err)
	assert.Equal(t, []time.Time{today, today.AddDate(0, 0, 1)}, dates)
}

func TestRunRecordsGeneratedAtAndHoliday(t *testing.T) {
	store := timeline.NewFileStore(t.TempDir(), time.UTC, nil)
	today := time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1) // Nationalfeiertag, a Friday
	require.NoError(t, store.Save(tier.Build(today, dayPrices(today, 1), 6.0, calendar.NewResolver(nil), today)))

	provider := &fakeProvider{prices: map[string][]tier.RawPrice{
		"2025-08-01": dayPrices(tomorrow, 2, 1),
	}}
	p := New(provider, store, calendar.NewResolver(nil), 6.0, nil)
	generated := time.Date(2025, 7, 31, 18, 0, 0, 0, time.UTC)
	p.timeNow = func() time.Time { return generated }

	_, err := p.Run(context.Background(), today)
	require.NoError(t, err)

	s, err := store.Load(tomorrow)
	require.NoError(t, err)
	assert.Equal(t, calendar.Weekend, s.DayType)
	assert.Equal(t, "Nationalfeiertag", s.CalendarReason)
	assert.True(t, s.GeneratedAt.Equal(generated))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	store, today := setup(t)
	provider := &fakeProvider{}
	p := New(provider, store, calendar.NewResolver(nil), 6.0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, today)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, provider.calls)
}
