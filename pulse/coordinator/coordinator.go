// Package coordinator runs one evaluation pass over the configured jobs.
//
// A pass checks disk capacity, loads learned state and the price timeline,
// asks the decision engine about every job in order, launches the winners
// (at most one per exclusion group) and then polls them until all have
// exited, recording each completion.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/launcher"
	"github.com/teranos/gridpulse/logger"
	"github.com/teranos/gridpulse/pulse/calendar"
	"github.com/teranos/gridpulse/pulse/decide"
	"github.com/teranos/gridpulse/pulse/job"
	"github.com/teranos/gridpulse/pulse/timeline"
)

// Defaults for Config.
const (
	DefaultPollInterval = 1 * time.Second
	// MinHorizonDays keeps the first-run search window covered.
	MinHorizonDays = 2
)

// StateStore persists learned job statistics.
type StateStore interface {
	Load(ctx context.Context) (map[string]*job.State, error)
	RecordCompletion(ctx context.Context, jobID string, duration time.Duration, completedAt time.Time) (*job.State, error)
}

// DiskMonitor reports whether the watched filesystem is critically full.
type DiskMonitor interface {
	Critical(ctx context.Context) (bool, float64, error)
}

// Decider makes the run-now-or-wait call for one job.
type Decider interface {
	Evaluate(def job.Definition, st *job.State, now time.Time, tl *timeline.Timeline) decide.Decision
}

// Config holds pass settings.
type Config struct {
	Jobs             []job.Definition
	DryRun           bool
	HorizonDays      int
	PollInterval     time.Duration
	EmergencyCommand string
}

// Outcome is what happened to one job in a pass.
type Outcome string

const (
	OutcomeWaiting      Outcome = "waiting"
	OutcomeGroupBusy    Outcome = "group_busy"
	OutcomeLaunchFailed Outcome = "launch_failed"
	OutcomeLaunched     Outcome = "launched"
	OutcomeCompleted    Outcome = "completed"
	OutcomeDryRun       Outcome = "dry_run"
)

// JobResult reports one job's part in a pass.
type JobResult struct {
	JobID    string
	Outcome  Outcome
	Decision *decide.Decision // nil when the job was never evaluated
	Duration time.Duration    // recorded run time for completed and dry-run jobs
	ExitCode int
	Err      error
}

// PassResult reports a whole pass.
type PassResult struct {
	RunID           string
	Now             time.Time
	DayType         calendar.DayType
	Emergency       bool
	DiskUsedPercent float64
	Jobs            []JobResult
}

// IDs returns the ids of the jobs that ended with one of outcomes, in pass order.
func (r *PassResult) IDs(outcomes ...Outcome) []string {
	var ids []string
	for _, j := range r.Jobs {
		for _, o := range outcomes {
			if j.Outcome == o {
				ids = append(ids, j.JobID)
				break
			}
		}
	}
	return ids
}

// Launched returns the ids of jobs started in this pass, dry-run included.
func (r *PassResult) Launched() []string {
	return r.IDs(OutcomeLaunched, OutcomeCompleted, OutcomeDryRun)
}

// Result returns the result for jobID.
func (r *PassResult) Result(jobID string) (JobResult, bool) {
	for _, j := range r.Jobs {
		if j.JobID == jobID {
			return j, true
		}
	}
	return JobResult{}, false
}

// running is a launched job awaiting completion.
type running struct {
	def    job.Definition
	handle launcher.Handle
	index  int // position in PassResult.Jobs
}

// Coordinator runs evaluation passes.
type Coordinator struct {
	cfg       Config
	engine    Decider
	days      decide.DayTyper
	states    StateStore
	schedules timeline.ScheduleStore
	launcher  launcher.Launcher
	disk      DiskMonitor
	logger    *zap.SugaredLogger

	timeNow func() time.Time
}

// New wires a coordinator. disk may be nil to skip the capacity check.
func New(cfg Config, engine Decider, days decide.DayTyper, states StateStore, schedules timeline.ScheduleStore, l launcher.Launcher, disk DiskMonitor, log *zap.SugaredLogger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HorizonDays < MinHorizonDays {
		cfg.HorizonDays = MinHorizonDays
	}
	if log == nil {
		log = logger.Logger
	}
	return &Coordinator{
		cfg:       cfg,
		engine:    engine,
		days:      days,
		states:    states,
		schedules: schedules,
		launcher:  l,
		disk:      disk,
		logger:    log,
		timeNow:   time.Now,
	}
}

// SetClock replaces the wall clock, used for --now overrides.
func (c *Coordinator) SetClock(now func() time.Time) {
	if now != nil {
		c.timeNow = now
	}
}

// RunPass performs one evaluation pass. It returns an error only when ctx is
// cancelled while waiting for jobs; running jobs are left alive in that case.
func (c *Coordinator) RunPass(ctx context.Context) (*PassResult, error) {
	now := c.timeNow()
	result := &PassResult{
		RunID:   uuid.New().String(),
		Now:     now,
		DayType: c.days.DayType(now),
	}
	ctx = logger.WithRunID(ctx, result.RunID)
	log := logger.FromContext(ctx, c.logger)

	logger.AddPulseOpenSymbol(log).Infow("Evaluation pass started",
		logger.FieldStartTime, now.Format(time.RFC3339),
		logger.FieldDayType, string(result.DayType),
		"dry_run", c.cfg.DryRun,
		logger.FieldCount, len(c.cfg.Jobs))

	if c.checkDisk(ctx, result) {
		return result, nil
	}

	states, err := c.states.Load(ctx)
	if err != nil {
		log.Warnw("Failed to load job state, continuing without history", logger.FieldError, err)
		states = map[string]*job.State{}
	}

	tl := timeline.Load(ctx, c.schedules, now, c.cfg.HorizonDays, log)
	if tl.Empty() {
		log.Warnw("No price data available, jobs will not wait for a cheaper window")
	} else {
		log.Debugw("Timeline loaded", "slots", tl.Len(), "days", len(tl.Days()))
	}

	launched := c.evaluate(ctx, job.SortByOrder(c.cfg.Jobs), states, now, tl, result)

	if err := c.monitor(ctx, launched, result); err != nil {
		return result, err
	}

	logger.AddPulseCloseSymbol(log).Infow("Evaluation pass finished",
		"launched", len(result.Launched()),
		"waiting", len(result.IDs(OutcomeWaiting, OutcomeGroupBusy)),
		"failed", len(result.IDs(OutcomeLaunchFailed)))
	return result, nil
}

// checkDisk runs the emergency command when the disk is critical and reports
// whether the pass must stop. Monitor errors never stop the pass.
func (c *Coordinator) checkDisk(ctx context.Context, result *PassResult) bool {
	if c.disk == nil {
		return false
	}
	log := logger.FromContext(ctx, c.logger)

	critical, used, err := c.disk.Critical(ctx)
	result.DiskUsedPercent = used
	if err != nil {
		log.Warnw("Disk check failed, assuming capacity is fine", logger.FieldError, err)
		return false
	}
	if !critical {
		return false
	}

	result.Emergency = true
	log.Errorw("Disk critical, running emergency command",
		"used_percent", used,
		"command", c.cfg.EmergencyCommand)

	if c.cfg.EmergencyCommand == "" {
		log.Warnw("No emergency command configured")
		return true
	}
	if c.cfg.DryRun {
		log.Infow("Dry run: emergency command not executed")
		return true
	}

	h, err := c.launcher.Launch(ctx, c.cfg.EmergencyCommand)
	if err != nil {
		log.Errorw("Emergency command failed to start", logger.FieldError, err)
		return true
	}
	if err := h.Wait(ctx); err != nil {
		log.Warnw("Stopped waiting for emergency command", logger.FieldError, err)
		return true
	}
	log.Infow("Emergency command finished",
		"exit_code", h.ExitCode(),
		logger.FieldDurationMS, h.Duration().Milliseconds())
	return true
}

// evaluate decides every job in order and launches the winners. A group is
// reserved as soon as one of its jobs is chosen, even if the launch fails.
func (c *Coordinator) evaluate(ctx context.Context, defs []job.Definition, states map[string]*job.State, now time.Time, tl *timeline.Timeline, result *PassResult) []*running {
	activeGroups := make(map[string]bool)
	var launched []*running

	for _, def := range defs {
		jobCtx := logger.WithJobID(ctx, def.ID)
		log := logger.FromContext(jobCtx, c.logger)
		if def.Group != "" {
			log = log.With(logger.FieldGroup, def.Group)
		}

		if def.Group != "" && activeGroups[def.Group] {
			log.Infow("Group busy, skipping")
			result.Jobs = append(result.Jobs, JobResult{JobID: def.ID, Outcome: OutcomeGroupBusy})
			continue
		}

		d := c.engine.Evaluate(def, states[def.ID], now, tl)
		log.Debugw("Cost comparison",
			"current_cost", d.CurrentCost,
			"best_cost", d.BestCost,
			"best_start", formatTime(d.BestStart),
			"deadline", formatTime(d.Deadline),
			"runtime", d.Runtime)

		res := JobResult{JobID: def.ID, Decision: &d}
		if !d.Run {
			log.Infow("Waiting",
				logger.FieldReason, string(d.Reason),
				logger.FieldTier, d.Tier)
			res.Outcome = OutcomeWaiting
			result.Jobs = append(result.Jobs, res)
			continue
		}

		if def.Group != "" {
			activeGroups[def.Group] = true
		}

		if c.cfg.DryRun {
			logger.AddPulseSymbol(log).Infow("Dry run: job would launch",
				logger.FieldReason, string(d.Reason),
				logger.FieldTier, d.Tier)
			res.Outcome = OutcomeDryRun
			res.Duration = def.InitialRuntime
			c.record(jobCtx, def.ID, def.InitialRuntime)
			result.Jobs = append(result.Jobs, res)
			continue
		}

		h, err := c.launcher.Launch(jobCtx, def.Command)
		if err != nil {
			log.Errorw("Launch failed", logger.FieldError, err)
			res.Outcome = OutcomeLaunchFailed
			res.Err = err
			result.Jobs = append(result.Jobs, res)
			continue
		}

		logger.AddPulseSymbol(log).Infow("Launching job",
			logger.FieldReason, string(d.Reason),
			logger.FieldTier, d.Tier,
			"pid", h.PID())
		res.Outcome = OutcomeLaunched
		result.Jobs = append(result.Jobs, res)
		launched = append(launched, &running{def: def, handle: h, index: len(result.Jobs) - 1})
	}
	return launched
}

// monitor polls the launched jobs until every one has exited. Cancelling ctx
// stops the wait without touching the processes.
func (c *Coordinator) monitor(ctx context.Context, jobs []*running, result *PassResult) error {
	if len(jobs) == 0 {
		return nil
	}
	logger.FromContext(ctx, c.logger).Infow("Monitoring running jobs", logger.FieldCount, len(jobs))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pending := jobs[:0]
		for _, r := range jobs {
			if !r.handle.Exited() {
				pending = append(pending, r)
				continue
			}
			c.complete(ctx, r, result)
		}
		jobs = pending
		if len(jobs) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			ids := make([]string, len(jobs))
			for i, r := range jobs {
				ids[i] = r.def.ID
			}
			logger.FromContext(ctx, c.logger).Warnw("Pass cancelled, leaving jobs running", "jobs", ids)
			return errors.Wrap(ctx.Err(), "evaluation pass cancelled while jobs were running")
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) complete(ctx context.Context, r *running, result *PassResult) {
	jobCtx := logger.WithJobID(ctx, r.def.ID)
	log := logger.FromContext(jobCtx, c.logger)

	d := r.handle.Duration()
	code := r.handle.ExitCode()
	res := &result.Jobs[r.index]
	res.Outcome = OutcomeCompleted
	res.Duration = d
	res.ExitCode = code

	if code != 0 {
		log.Warnw("Job exited with non-zero status",
			"exit_code", code,
			logger.FieldDurationMS, d.Milliseconds())
	} else {
		log.Infow("Job finished", logger.FieldDurationMS, d.Milliseconds())
	}
	c.record(jobCtx, r.def.ID, d)
}

// record stores a completion. Failures only cost the learned statistics.
func (c *Coordinator) record(ctx context.Context, jobID string, d time.Duration) {
	log := logger.FromContext(ctx, c.logger)
	st, err := c.states.RecordCompletion(ctx, jobID, d, c.timeNow())
	if err != nil {
		log.Warnw("Failed to record completion", logger.FieldError, err)
		return
	}
	log.Debugw("Runtime statistics updated",
		"avg_runtime", st.AvgDuration,
		"history", len(st.History))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
