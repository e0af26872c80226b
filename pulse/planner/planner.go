// Package planner produces the classified schedules consumed by the executor.
//
// A planning run removes schedules for past days, then fetches, classifies and
// stores tomorrow's forecast. Today's schedule is regenerated too when its file
// is missing, so a planner that missed a day heals the timeline on its next run.
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/forecast"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/tier"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// Report summarizes one planning run.
type Report struct {
	Saved   []time.Time
	Failed  map[time.Time]error
	Removed []time.Time
}

// OK reports whether every target day was saved.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// Planner turns forecasts into stored daily schedules.
type Planner struct {
	provider forecast.Provider
	store    timeline.ScheduleStore
	resolver tier.Resolver
	hardCap  float64
	logger   *zap.SugaredLogger

	timeNow func() time.Time
}

// New creates a planner. A hardCap <= 0 uses tier.DefaultHardCap.
func New(provider forecast.Provider, store timeline.ScheduleStore, resolver tier.Resolver, hardCap float64, log *zap.SugaredLogger) *Planner {
	if hardCap <= 0 {
		hardCap = tier.DefaultHardCap
	}
	if log == nil {
		log = logger.Logger
	}
	return &Planner{
		provider: provider,
		store:    store,
		resolver: resolver,
		hardCap:  hardCap,
		logger:   log,
		timeNow:  time.Now,
	}
}

// Targets returns the days to generate for today: tomorrow, preceded by today
// when no schedule exists for it.
func (p *Planner) Targets(today time.Time) []time.Time {
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	targets := []time.Time{day.AddDate(0, 0, 1)}
	if !p.store.Exists(day) {
		p.logger.Warnw("Schedule for today is missing, adding to queue",
			logger.FieldDate, day.Format(timeline.DateLayout))
		targets = append([]time.Time{day}, targets...)
	}
	return targets
}

// Run performs one planning run. Per-day failures are recorded in the report
// and never stop the remaining days; the returned error is non-nil only when
// ctx is cancelled.
func (p *Planner) Run(ctx context.Context, today time.Time) (*Report, error) {
	log := logger.AddPulseOpenSymbol(p.logger)
	log.Infow("Planning started", logger.FieldDate, today.Format(timeline.DateLayout))

	report := &Report{Failed: make(map[time.Time]error)}

	removed, err := p.store.Cleanup(today)
	report.Removed = removed
	if err != nil {
		p.logger.Warnw("Failed to clean up old schedules", logger.FieldError, err)
	} else if len(removed) > 0 {
		p.logger.Infow("Removed old schedules", logger.FieldCount, len(removed))
	}

	for _, day := range p.Targets(today) {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "planning cancelled")
		}
		if err := p.planDay(ctx, day); err != nil {
			p.logger.Errorw("Planning failed for day",
				logger.FieldDate, day.Format(timeline.DateLayout),
				logger.FieldError, err)
			report.Failed[day] = err
			continue
		}
		report.Saved = append(report.Saved, day)
	}

	logger.AddPulseCloseSymbol(p.logger).Infow("Planning finished",
		"saved", len(report.Saved),
		"failed", len(report.Failed),
		"removed", len(report.Removed))
	return report, nil
}

func (p *Planner) planDay(ctx context.Context, day time.Time) error {
	raw, err := p.provider.Fetch(ctx, day)
	if err != nil {
		return errors.Wrap(err, "fetch failed")
	}

	schedule := tier.Build(day, raw, p.hardCap, p.resolver, p.timeNow())
	if err := p.store.Save(schedule); err != nil {
		return errors.Wrap(err, "save failed")
	}

	sum := schedule.Summarize()
	logger.AddPulseSymbol(p.logger).Infow("Schedule saved",
		logger.FieldDate, day.Format(timeline.DateLayout),
		logger.FieldDayType, string(schedule.DayType),
		logger.FieldReason, schedule.CalendarReason,
		"slots", sum.Slots,
		"blocked", sum.Blocked,
		"min_price_rp", sum.MinPrice,
		"max_price_rp", sum.MaxPrice)
	return nil
}
