package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/gridpulse/am"
	"github.com/teranos/gridpulse/diskguard"
	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/launcher"
	"github.com/teranos/gridpulse/lock"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/metrics"
	"github.com/teranos/gridpulse/pulse/coordinator"
	"github.com/teranos/gridpulse/pulse/cost"
	"github.com/teranos/gridpulse/pulse/decide"
	"github.com/teranos/gridpulse/pulse/state"
)

// RunCmd performs one executor pass
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: logger.SymPulse + " Evaluate all jobs once and launch the due ones",
	Long: logger.SymPulse + ` run — Evaluate all jobs once and launch the due ones

One pass loads the learned state and the stored price schedules, decides for
every job in order whether to start it now, launches the winners (at most one
per group) and waits for them to finish so their runtime can be learned.

Only one pass runs at a time: when another pass holds the lock file this
command exits 0 without doing anything. Meant to be called every 15 minutes.

With --dry-run nothing is launched; each job that would start is recorded as
if it ran for its initial runtime, in a separate state database.

Examples:
  gridpulse run
  gridpulse run --dry-run --now "2026-03-03 14:30"`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var (
	runDryRunFlag bool
	runNowFlag    string
)

func init() {
	RunCmd.Flags().BoolVar(&runDryRunFlag, "dry-run", false, "Decide and record, but launch nothing")
	RunCmd.Flags().StringVar(&runNowFlag, "now", "", "Pretend the pass starts at this local time ("+am.NowLayout+")")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Executor.DryRun = runDryRunFlag
	}
	if runNowFlag != "" {
		cfg.Executor.NowOverride = runNowFlag
	}
	loc := cfg.Location()
	log := logger.Logger.Named("pulse.coordinator")

	lk, err := lock.Acquire(cfg.Executor.LockFile)
	if errors.Is(err, lock.ErrLocked) {
		log.Infow("Another pass is running, skipping", logger.FieldPath, cfg.Executor.LockFile)
		return nil
	}
	if err != nil {
		return err
	}
	defer lk.Release()

	defs, err := cfg.JobDefinitions()
	if err != nil {
		return err
	}
	gate, err := cfg.Gate()
	if err != nil {
		return err
	}
	resolver := cfg.Resolver()

	database, err := openStateDB(cfg, cfg.Executor.DryRun)
	if err != nil {
		return err
	}
	defer database.Close()

	engine := decide.NewEngine(gate, resolver, cost.NewEstimator(cfg.Executor.MissingPenalty), decide.Config{
		Tolerance:      cfg.Executor.Tolerance,
		FirstRunWindow: cfg.FirstRunWindow(),
		RuntimeFloor:   cfg.RuntimeFloor(),
	})

	coord := coordinator.New(
		coordinator.Config{
			Jobs:             defs,
			DryRun:           cfg.Executor.DryRun,
			HorizonDays:      cfg.Executor.HorizonDays,
			PollInterval:     cfg.PollInterval(),
			EmergencyCommand: cfg.Executor.Disk.EmergencyCommand,
		},
		engine,
		resolver,
		state.NewStore(database, logger.Logger.Named("state")),
		scheduleStore(cfg, loc),
		launcher.NewExecLauncher(cfg.Executor.Shell),
		diskguard.NewMonitor(cfg.Executor.Disk.Path, cfg.Executor.Disk.ThresholdPercent),
		log,
	)

	// An override shifts the clock; it keeps ticking so runtimes stay real.
	now, overridden, err := cfg.Now(loc)
	if err != nil {
		return err
	}
	if overridden {
		base := time.Now()
		coord.SetClock(func() time.Time { return now.Add(time.Since(base)) })
	} else {
		coord.SetClock(func() time.Time { return time.Now().In(loc) })
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	result, err := coord.RunPass(ctx)
	if err != nil {
		return err
	}

	rec := metrics.NewRecorder()
	rec.ObservePass(result, time.Since(started))
	writeMetrics(cfg, "run", rec)

	if failed := result.IDs(coordinator.OutcomeLaunchFailed); len(failed) > 0 {
		return errors.Newf("failed to launch: %v", failed)
	}
	return nil
}
