// Package metrics exports pass and planning results in the Prometheus text
// format. gridpulse is started by a timer and exits after each run, so there
// is no scrape endpoint; the registry is written to a file picked up by the
// node_exporter textfile collector.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/gridpulse/errors"
	"github.com/teranos/gridpulse/pulse/coordinator"
	"github.com/teranos/gridpulse/pulse/planner"
)

const namespace = "gridpulse"

// Recorder holds the collectors for one invocation.
type Recorder struct {
	reg *prometheus.Registry

	passTimestamp   prometheus.Gauge
	passDuration    prometheus.Gauge
	passEmergency   prometheus.Gauge
	diskUsedPercent prometheus.Gauge
	jobOutcome      *prometheus.GaugeVec
	jobDuration     *prometheus.GaugeVec
	jobExitCode     *prometheus.GaugeVec
	jobTier         *prometheus.GaugeVec
	jobCurrentCost  *prometheus.GaugeVec
	jobBestCost     *prometheus.GaugeVec

	planTimestamp prometheus.Gauge
	planDays      *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),

		passTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pass_timestamp_seconds",
			Help: "Unix time at which the last executor pass started",
		}),
		passDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pass_duration_seconds",
			Help: "Wall-clock duration of the last executor pass including job runtime",
		}),
		passEmergency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pass_disk_emergency",
			Help: "1 when the last pass ran the disk emergency command instead of jobs",
		}),
		diskUsedPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "disk_used_percent",
			Help: "Usage of the guarded filesystem seen by the last pass",
		}),
		jobOutcome: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_outcome",
			Help: "1 for the outcome and decision reason each job had in the last pass",
		}, []string{"job", "outcome", "reason"}),
		jobDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_duration_seconds",
			Help: "Runtime recorded for jobs that finished in the last pass",
		}, []string{"job"}),
		jobExitCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_exit_code",
			Help: "Exit code of jobs that finished in the last pass",
		}, []string{"job"}),
		jobTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_slot_tier",
			Help: "Tier of the current slot when the job was evaluated",
		}, []string{"job"}),
		jobCurrentCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_current_cost_rp",
			Help: "Average price over the job's runtime if started now",
		}, []string{"job"}),
		jobBestCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "job_best_cost_rp",
			Help: "Cheapest average price found before the job's deadline",
		}, []string{"job"}),

		planTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "plan_timestamp_seconds",
			Help: "Unix time at which the last planning run started",
		}),
		planDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "plan_days",
			Help: "Days saved, failed and removed by the last planning run",
		}, []string{"result"}),
	}
	return r
}

// Registry exposes the underlying registry for tests and custom gathering.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObservePass registers and fills the executor collectors from res.
func (r *Recorder) ObservePass(res *coordinator.PassResult, elapsed time.Duration) {
	r.reg.MustRegister(r.passTimestamp, r.passDuration, r.passEmergency, r.diskUsedPercent,
		r.jobOutcome, r.jobDuration, r.jobExitCode, r.jobTier, r.jobCurrentCost, r.jobBestCost)

	r.passTimestamp.Set(float64(res.Now.Unix()))
	r.passDuration.Set(elapsed.Seconds())
	r.diskUsedPercent.Set(res.DiskUsedPercent)
	if res.Emergency {
		r.passEmergency.Set(1)
	}

	for _, jr := range res.Jobs {
		reason := ""
		if jr.Decision != nil {
			reason = string(jr.Decision.Reason)
			r.jobTier.WithLabelValues(jr.JobID).Set(float64(jr.Decision.Tier))
			r.jobCurrentCost.WithLabelValues(jr.JobID).Set(jr.Decision.CurrentCost)
			r.jobBestCost.WithLabelValues(jr.JobID).Set(jr.Decision.BestCost)
		}
		r.jobOutcome.WithLabelValues(jr.JobID, string(jr.Outcome), reason).Set(1)

		switch jr.Outcome {
		case coordinator.OutcomeCompleted, coordinator.OutcomeDryRun:
			r.jobDuration.WithLabelValues(jr.JobID).Set(jr.Duration.Seconds())
			r.jobExitCode.WithLabelValues(jr.JobID).Set(float64(jr.ExitCode))
		}
	}
}

// ObservePlan registers and fills the planner collectors from rep.
func (r *Recorder) ObservePlan(rep *planner.Report, started time.Time) {
	r.reg.MustRegister(r.planTimestamp, r.planDays)

	r.planTimestamp.Set(float64(started.Unix()))
	r.planDays.WithLabelValues("saved").Set(float64(len(rep.Saved)))
	r.planDays.WithLabelValues("failed").Set(float64(len(rep.Failed)))
	r.planDays.WithLabelValues("removed").Set(float64(len(rep.Removed)))
}

// WriteTextfile writes the registry to path atomically. The directory is
// created when missing; an empty path does nothing.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create metrics directory for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return errors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
