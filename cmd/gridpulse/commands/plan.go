package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/forecast"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/metrics"
	"github.com/teranos/gridpulse/pulse/planner"
)

// PlanCmd downloads and classifies price schedules
var PlanCmd = &cobra.Command{
	Use:   "plan",
	Short: logger.SymPulseOpen + " Download and classify price schedules",
	Long: logger.SymPulseOpen + ` plan — Download and classify price schedules

Fetches the CKW grid usage forecast for tomorrow, classifies each 15-minute
slot into a tier and stores the result as <storage_path>/YYYY-MM-DD.json.
When today's schedule is missing it is generated first. Schedules older than
today are removed.

Exits non-zero when any day could not be planned, so cron mails the failure.

Examples:
  gridpulse plan                    # Tomorrow, plus today when missing
  gridpulse plan --date 2026-03-03  # Plan as if today were 2026-03-03`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var planDateFlag string

func init() {
	PlanCmd.Flags().StringVar(&planDateFlag, "date", "", "Plan as if today were this date (YYYY-MM-DD)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc := cfg.Location()

	now, err := currentTime(cfg, loc)
	if err != nil {
		return err
	}
	today, err := parseDate(planDateFlag, now)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := forecast.NewCKWClient(forecast.Config{
		BaseURL:           cfg.Forecast.APIURL,
		TariffType:        cfg.Forecast.TariffType,
		TariffName:        cfg.Forecast.TariffName,
		Timeout:           cfg.ForecastTimeout(),
		RequestsPerMinute: cfg.Forecast.RequestsPerMinute,
		BreakerFailures:   uint32(cfg.Forecast.BreakerFailures),
		BreakerCooldown:   cfg.BreakerCooldown(),
		Location:          loc,
		Logger:            logger.Logger.Named("forecast"),
	})

	p := planner.New(client, scheduleStore(cfg, loc), cfg.Resolver(), cfg.Planner.HardCap, logger.Logger.Named("pulse.planner"))
	started := time.Now()
	report, err := p.Run(ctx, today)
	if err != nil {
		return err
	}

	rec := metrics.NewRecorder()
	rec.ObservePlan(report, started)
	writeMetrics(cfg, "plan", rec)

	return planError(report)
}

// planError summarizes failed days. An open breaker means the forecast API
// itself is down, which gets a hint instead of one error per day.
func planError(report *planner.Report) error {
	if report.OK() {
		return nil
	}
	err := errors.Newf("planning failed for %d of %d days", len(report.Failed), len(report.Failed)+len(report.Saved))
	for _, dayErr := range report.Failed {
		if errors.IsServiceUnavailableError(dayErr) {
			return errors.WithHint(
				errors.Wrap(errors.ErrServiceUnavailable, err.Error()),
				"the CKW forecast API is unavailable; the next scheduled plan run will retry")
		}
	}
	return err
}
