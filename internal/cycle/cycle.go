// Package cycle runs one full scheduling pass: scan, materialize, post and
// report. The cron trigger, the tick command and the run-now endpoint all
// invoke it.
package cycle

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/posting"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/scan"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
)

// Scanner runs the scan phase.
type Scanner interface {
	RunCycle(ctx context.Context) (scan.CycleReport, error)
}

// Scheduler materializes days.
type Scheduler interface {
	Today() time.Time
	GetOrMaterializeSchedule(ctx context.Context, day time.Time) (schedule.Schedule, error)
}

// Poster publishes due slots.
type Poster interface {
	PostDue(ctx context.Context, now time.Time) (posting.Report, error)
}

// Reporter computes the diversity report.
type Reporter interface {
	GetDiversityMetrics(ctx context.Context, day time.Time) (diversity.Report, error)
}

// Report is the outcome of RunOnce. Skipped phases are nil.
type Report struct {
	StartedAt    time.Time         `json:"started_at"`
	Duration     time.Duration     `json:"duration_ns"`
	Scan         *scan.CycleReport `json:"scan,omitempty"`
	Materialized []string          `json:"materialized"`
	Posting      *posting.Report   `json:"posting,omitempty"`
	Diversity    *diversity.Report `json:"diversity,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
}

// Runner executes one periodic run. Scan and post phases are optional.
type Runner struct {
	scanner   Scanner
	scheduler Scheduler
	poster    Poster
	reporter  Reporter
	metrics   *metrics.Metrics
	logger    logger.Logger
	now       func() time.Time
}

// NewRunner wires the phases. scanner and poster may be nil to skip them.
func NewRunner(scanner Scanner, sched Scheduler, poster Poster, reporter Reporter, m *metrics.Metrics, log logger.Logger) *Runner {
	return &Runner{
		scanner:   scanner,
		scheduler: sched,
		poster:    poster,
		reporter:  reporter,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// RunOnce scans, materializes today and tomorrow, posts due slots and
// reports today's diversity. A phase failure is recorded and the next phase
// still runs, except storage unavailability, which ends the run.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	start := r.now()
	rep := Report{StartedAt: start.UTC(), Materialized: []string{}}
	err := r.run(ctx, &rep)
	rep.Duration = r.now().Sub(start)
	r.metrics.ObserveCycle(rep.Duration)
	return rep, err
}

func (r *Runner) run(ctx context.Context, rep *Report) error {
	// phase returns true when the run must stop.
	phase := func(name string, err error) bool {
		if err == nil {
			return false
		}
		r.logger.Error("Cycle phase failed", logger.String("phase", name), logger.Error(err))
		rep.Errors = append(rep.Errors, name+": "+err.Error())
		return domain.IsFatal(err) || ctx.Err() != nil
	}

	if r.scanner != nil {
		scanRep, err := r.scanner.RunCycle(ctx)
		rep.Scan = &scanRep
		if phase("scan", err) {
			return err
		}
	}

	today := r.scheduler.Today()
	for _, day := range []time.Time{today, today.AddDate(0, 0, 1)} {
		s, err := r.scheduler.GetOrMaterializeSchedule(ctx, day)
		if phase("materialize "+domain.DayKey(day), err) {
			return err
		}
		if err == nil {
			rep.Materialized = append(rep.Materialized, s.Day)
		}
	}

	if r.poster != nil {
		postRep, err := r.poster.PostDue(ctx, r.now())
		rep.Posting = &postRep
		if phase("post", err) {
			return err
		}
	}

	div, err := r.reporter.GetDiversityMetrics(ctx, today)
	if phase("diversity", err) {
		return err
	}
	if err == nil {
		rep.Diversity = &div
		for _, a := range div.Alerts {
			r.logger.Warn("Diversity alert",
				logger.Day(today),
				logger.String("type", string(a.Type)),
				logger.String("severity", string(a.Severity)),
				logger.String("message", a.Message),
			)
		}
	}

	fields := []logger.Field{logger.Strings("materialized", rep.Materialized), logger.Int("errors", len(rep.Errors))}
	if rep.Scan != nil {
		accepted, dups := rep.Scan.Totals()
		fields = append(fields, logger.Int("accepted", accepted), logger.Int("duplicates", dups))
	}
	if rep.Posting != nil {
		fields = append(fields, logger.Int("posted", rep.Posting.Posted), logger.Int("post_failures", rep.Posting.Failed))
	}
	if rep.Diversity != nil {
		fields = append(fields, logger.Int("diversity_score", rep.Diversity.Snapshot.Score))
	}
	r.logger.Info("Cycle complete", fields...)
	return nil
}
