package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/conservation"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/queue"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultBatchSize   = 25
	defaultConcurrency = 4

	// EndpointScan labels usage records written by the runner.
	EndpointScan = "scan"

	breakerFailures = 3
	breakerWindow   = 5
	breakerDelay    = 5 * time.Minute
)

// Gate is the conservation advisor as seen by the runner.
type Gate interface {
	Lock(platform domain.Platform) func()
	ShouldCall(ctx context.Context, platform domain.Platform, n int) (conservation.Decision, error)
	RecordUsage(ctx context.Context, rec domain.PlatformUsageRecord) error
}

// Submitter accepts scanned candidates into the queue.
type Submitter interface {
	Submit(ctx context.Context, c domain.Candidate) (queue.SubmitResult, error)
}

// Platform outcomes.
const (
	OutcomeScanned     = "scanned"
	OutcomeDenied      = "denied"
	OutcomeTimeout     = "timeout"
	OutcomeFailed      = "failed"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeCanceled    = "canceled"
)

// PlatformReport summarizes one platform's part of a cycle.
type PlatformReport struct {
	Platform   domain.Platform `json:"platform"`
	Outcome    string          `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Scanned    int             `json:"scanned"`
	Accepted   int             `json:"accepted"`
	Duplicates int             `json:"duplicates"`
	Rejected   int             `json:"rejected"`
	ItemErrors int             `json:"item_errors"`
	Duration   time.Duration   `json:"duration_ns"`
}

// CycleReport is the outcome of a scan cycle.
type CycleReport struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration_ns"`
	Platforms []PlatformReport `json:"platforms"`
}

// Totals sums accepted and duplicate submissions across platforms.
func (r CycleReport) Totals() (accepted, duplicates int) {
	for i := range r.Platforms {
		accepted += r.Platforms[i].Accepted
		duplicates += r.Platforms[i].Duplicates
	}
	return accepted, duplicates
}

type platformRunner struct {
	scanner  Scanner
	settings Settings
	breaker  circuitbreaker.CircuitBreaker[Result]
	limiter  *rate.Limiter
}

// Runner scans every registered platform once per cycle.
type Runner struct {
	platforms   []*platformRunner
	gate        Gate
	submitter   Submitter
	concurrency int
	metrics     *metrics.Metrics
	logger      logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewRunner registers scanners with their settings. A scanner without
// settings uses the default batch size and timeout and is not paced.
func NewRunner(scanners []Scanner, settings map[domain.Platform]Settings, gate Gate, sub Submitter, concurrency int, m *metrics.Metrics, log logger.Logger) *Runner {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	r := &Runner{
		gate:        gate,
		submitter:   sub,
		concurrency: concurrency,
		metrics:     m,
		logger:      log,
		tracer:      otel.Tracer("social-scheduler/scan"),
		now:         time.Now,
	}
	for _, s := range scanners {
		st := settings[s.Platform()]
		if st.BatchSize < 1 {
			st.BatchSize = defaultBatchSize
		}
		if st.Timeout <= 0 {
			st.Timeout = defaultTimeout
		}
		limiter := rate.NewLimiter(rate.Inf, 1)
		if st.RatePerMinute > 0 {
			limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(st.RatePerMinute)), 1)
		}
		r.platforms = append(r.platforms, &platformRunner{
			scanner:  s,
			settings: st,
			breaker:  r.newBreaker(s.Platform()),
			limiter:  limiter,
		})
	}
	sort.Slice(r.platforms, func(i, j int) bool {
		return r.platforms[i].scanner.Platform() < r.platforms[j].scanner.Platform()
	})
	return r
}

func (r *Runner) newBreaker(p domain.Platform) circuitbreaker.CircuitBreaker[Result] {
	return circuitbreaker.NewBuilder[Result]().
		WithFailureThresholdRatio(breakerFailures, breakerWindow).
		WithDelay(breakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			r.logger.Warn("Scan circuit breaker state change",
				logger.Platform(string(p)),
				logger.String("from_state", stateName(e.OldState)),
				logger.String("to_state", stateName(e.NewState)),
			)
		}).
		Build()
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

// Platforms lists the registered platforms in scan order.
func (r *Runner) Platforms() []domain.Platform {
	out := make([]domain.Platform, len(r.platforms))
	for i, p := range r.platforms {
		out[i] = p.scanner.Platform()
	}
	return out
}

// RunCycle scans all platforms concurrently. A failing platform is reported
// and the others continue; only domain.ErrStorageUnavailable or cancellation
// of ctx ends the cycle with an error.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: r.now().UTC()}
	reports := make([]PlatformReport, len(r.platforms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	var mu sync.Mutex
	for i, p := range r.platforms {
		g.Go(func() error {
			rep, err := r.scanPlatform(gctx, p)
			mu.Lock()
			reports[i] = rep
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()

	report.Platforms = reports
	report.Duration = r.now().Sub(report.StartedAt)
	if err != nil {
		return report, err
	}
	return report, ctx.Err()
}

func (r *Runner) scanPlatform(ctx context.Context, p *platformRunner) (PlatformReport, error) {
	platform := p.scanner.Platform()
	rep := PlatformReport{Platform: platform}
	start := r.now()
	defer func() { rep.Duration = r.now().Sub(start) }()

	log := r.logger.With(logger.Platform(string(platform)))

	unlock := r.gate.Lock(platform)
	defer unlock()

	if err := ctx.Err(); err != nil {
		rep.Outcome = OutcomeCanceled
		return rep, nil
	}

	decision, err := r.gate.ShouldCall(ctx, platform, 1)
	if err != nil {
		if domain.IsFatal(err) {
			return rep, err
		}
		rep.Outcome, rep.Reason = OutcomeFailed, err.Error()
		log.Error("Conservation check failed", logger.Error(err))
		return rep, nil
	}
	if !decision.Allowed {
		rep.Outcome, rep.Reason = OutcomeDenied, decision.Reason
		return rep, nil
	}

	if err = p.limiter.Wait(ctx); err != nil {
		rep.Outcome = OutcomeCanceled
		return rep, nil
	}

	res, callErr := r.call(ctx, p)
	switch {
	case errors.Is(callErr, circuitbreaker.ErrOpen):
		rep.Outcome, rep.Reason = OutcomeCircuitOpen, "circuit breaker open"
		r.metrics.RecordScanCall(string(platform), metrics.OutcomeOpen, 0)
		log.Warn("Scan skipped, circuit open")
		return rep, nil
	case ctx.Err() != nil:
		rep.Outcome = OutcomeCanceled
		return rep, nil
	}

	usage := domain.PlatformUsageRecord{
		Platform:     platform,
		Endpoint:     EndpointScan,
		CalledAt:     start.UTC(),
		Success:      callErr == nil,
		CostEstimate: 1,
	}
	if callErr != nil {
		usage.ErrorMessage = callErr.Error()
	}
	if err = r.gate.RecordUsage(ctx, usage); err != nil {
		if domain.IsFatal(err) {
			return rep, err
		}
		log.Error("Failed to record scan usage", logger.Error(err))
	}

	if callErr != nil {
		rep.Reason = callErr.Error()
		if errors.Is(callErr, domain.ErrUpstreamTimeout) {
			rep.Outcome = OutcomeTimeout
			r.metrics.RecordScanCall(string(platform), metrics.OutcomeTimeout, 0)
		} else {
			rep.Outcome = OutcomeFailed
			r.metrics.RecordScanCall(string(platform), metrics.OutcomeFailure, 0)
		}
		log.Warn("Scan call failed", logger.Error(callErr))
		return rep, nil
	}

	rep.Outcome = OutcomeScanned
	rep.Scanned = len(res.Items)
	rep.ItemErrors = len(res.Errors)
	r.metrics.RecordScanCall(string(platform), metrics.OutcomeSuccess, len(res.Items))
	for _, itemErr := range res.Errors {
		log.Debug("Scan item error", logger.Error(itemErr))
	}

	for i := range res.Items {
		if err = ctx.Err(); err != nil {
			break
		}
		c := res.Items[i]
		if c.Platform == "" {
			c.Platform = platform
		}
		sub, subErr := r.submitter.Submit(ctx, c)
		switch {
		case subErr == nil && sub.Accepted:
			rep.Accepted++
		case subErr == nil:
			rep.Duplicates++
		case domain.IsFatal(subErr):
			return rep, subErr
		default:
			rep.Rejected++
			log.Warn("Scanned item rejected",
				logger.String("source_url", c.SourceURL),
				logger.Error(subErr),
			)
		}
	}

	log.Info("Platform scanned",
		logger.Int("scanned", rep.Scanned),
		logger.Int("accepted", rep.Accepted),
		logger.Int("duplicates", rep.Duplicates),
		logger.Int("rejected", rep.Rejected),
	)
	return rep, nil
}

// call runs one bounded scan through the platform's breaker. A deadline
// becomes domain.ErrUpstreamTimeout and any other failure
// domain.ErrUpstreamFailure.
func (r *Runner) call(ctx context.Context, p *platformRunner) (Result, error) {
	platform := p.scanner.Platform()
	ctx, span := r.tracer.Start(ctx, "scan.call",
		trace.WithAttributes(
			attribute.String("platform", string(platform)),
			attribute.Int("max_items", p.settings.BatchSize),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
	defer cancel()

	res, err := failsafe.With[Result](p.breaker).WithContext(callCtx).Get(func() (Result, error) {
		return p.scanner.Scan(callCtx, p.settings.BatchSize, p.settings.Params)
	})
	if err == nil {
		span.SetAttributes(attribute.Int("items", len(res.Items)))
		return res, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		return Result{}, err
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return Result{}, fmt.Errorf("%w: %s scan exceeded %s", domain.ErrUpstreamTimeout, platform, p.settings.Timeout)
	default:
		return Result{}, fmt.Errorf("%w: %s scan: %w", domain.ErrUpstreamFailure, platform, err)
	}
}
