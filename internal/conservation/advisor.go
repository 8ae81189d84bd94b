// Package conservation decides how much upstream scanning the queue can
// afford, based on days of content on hand and per-platform call quotas.
package conservation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/queue"
)

// windowOrder fixes the evaluation and reporting order of limit windows.
var windowOrder = []domain.LimitWindow{domain.WindowHourly, domain.WindowDaily, domain.WindowMonthly}

// UsageStore is the per-platform call ledger.
type UsageStore interface {
	InsertUsage(ctx context.Context, rec *domain.PlatformUsageRecord) error
	CountSuccessfulUsage(ctx context.Context, platform domain.Platform, since time.Time) (int, error)
}

// HealthReader reports backlog health.
type HealthReader interface {
	GetQueueHealth(ctx context.Context) (queue.Health, error)
}

// Limits maps each platform to its per-window call quota.
type Limits map[domain.Platform]map[domain.LimitWindow]int

// WindowUsage is the quota state of one window.
type WindowUsage struct {
	Window         domain.LimitWindow `json:"window"`
	Used           int                `json:"used"`
	Limit          int                `json:"limit"`
	EffectiveLimit int                `json:"effective_limit"`
	Remaining      int                `json:"remaining"`
	ResetAt        time.Time          `json:"reset_at"`
}

// Decision is the answer to ShouldCall. A denial is a value, not an error.
type Decision struct {
	Allowed       bool            `json:"allowed"`
	Platform      domain.Platform `json:"platform"`
	Requested     int             `json:"requested"`
	Reason        string          `json:"reason"`
	Ceiling       float64         `json:"ceiling"`
	DaysOfContent float64         `json:"days_of_content"`
	Usage         []WindowUsage   `json:"usage"`
}

// Err returns domain.ErrQuotaExceeded for a denial.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrQuotaExceeded, d.Reason)
}

// CeilingFor maps days of content to the share of quota scanning may use.
func CeilingFor(daysOfContent float64) float64 {
	switch {
	case daysOfContent > 14:
		return 0.10
	case daysOfContent > 7:
		return 0.50
	case daysOfContent > 3:
		return 0.80
	default:
		return 0.95
	}
}

// EffectiveLimit is the quota share permitted under ceiling, never above limit.
func EffectiveLimit(limit int, ceiling float64) int {
	eff := int(math.Floor(float64(limit)*ceiling + 1e-9))
	return min(eff, limit)
}

// Advisor decides whether a platform may be called given its quota and
// the content backlog.
type Advisor struct {
	usage   UsageStore
	health  HealthReader
	limits  Limits
	loc     *time.Location
	metrics *metrics.Metrics
	logger  logger.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[domain.Platform]*sync.Mutex
}

// NewAdvisor creates an advisor. Platforms missing from limits are unlimited.
func NewAdvisor(usage UsageStore, health HealthReader, limits Limits, loc *time.Location, m *metrics.Metrics, log logger.Logger) *Advisor {
	if loc == nil {
		loc = time.UTC
	}
	return &Advisor{
		usage:   usage,
		health:  health,
		limits:  limits,
		loc:     loc,
		metrics: m,
		logger:  log,
		now:     time.Now,
		locks:   make(map[domain.Platform]*sync.Mutex),
	}
}

// SetClock overrides the time source.
func (a *Advisor) SetClock(now func() time.Time) {
	a.now = now
}

// Lock serializes check, scan and record for one platform so concurrent
// cycles cannot double-spend its quota. Call the returned func to release.
func (a *Advisor) Lock(platform domain.Platform) func() {
	a.mu.Lock()
	l, ok := a.locks[platform]
	if !ok {
		l = &sync.Mutex{}
		a.locks[platform] = l
	}
	a.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ShouldCall decides whether n more calls to platform fit within every
// configured window at the current conservation ceiling.
func (a *Advisor) ShouldCall(ctx context.Context, platform domain.Platform, n int) (Decision, error) {
	if n < 1 {
		return Decision{}, fmt.Errorf("%w: estimated calls must be positive, got %d", domain.ErrInvalidInput, n)
	}

	health, err := a.health.GetQueueHealth(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("queue health: %w", err)
	}

	d := Decision{
		Allowed:       true,
		Platform:      platform,
		Requested:     n,
		Ceiling:       CeilingFor(health.DaysOfContent),
		DaysOfContent: health.DaysOfContent,
		Reason:        "within quota",
	}

	windows := a.limits[platform]
	if len(windows) == 0 {
		d.Reason = "no quota configured"
		a.metrics.RecordScanDecision(string(platform), metrics.OutcomeAllowed)
		return d, nil
	}

	now := a.now()
	for _, w := range windowOrder {
		limit, ok := windows[w]
		if !ok {
			continue
		}
		used, countErr := a.usage.CountSuccessfulUsage(ctx, platform, w.Start(now, a.loc))
		if countErr != nil {
			return Decision{}, fmt.Errorf("count %s usage: %w", w, countErr)
		}
		eff := EffectiveLimit(limit, d.Ceiling)
		wu := WindowUsage{
			Window:         w,
			Used:           used,
			Limit:          limit,
			EffectiveLimit: eff,
			Remaining:      max(0, eff-used),
			ResetAt:        w.Reset(now, a.loc),
		}
		d.Usage = append(d.Usage, wu)

		if d.Allowed && used+n > eff {
			d.Allowed = false
			d.Reason = fmt.Sprintf("%s %s quota: %d used + %d requested exceeds %d (%.0f%% of %d at %.1f days of content)",
				platform, w, used, n, eff, d.Ceiling*100, limit, d.DaysOfContent)
		}
	}

	if d.Allowed {
		a.metrics.RecordScanDecision(string(platform), metrics.OutcomeAllowed)
	} else {
		a.metrics.RecordScanDecision(string(platform), metrics.OutcomeDenied)
		a.logger.Info("Scan denied by conservation advisor",
			logger.Platform(string(platform)),
			logger.Int("requested", n),
			logger.Float64("ceiling", d.Ceiling),
			logger.String("reason", d.Reason),
		)
	}
	return d, nil
}

// RecordUsage appends a call to the ledger. Failed calls are kept for audit
// and never count against quota.
func (a *Advisor) RecordUsage(ctx context.Context, rec domain.PlatformUsageRecord) error {
	if _, err := domain.ParsePlatform(string(rec.Platform)); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CalledAt.IsZero() {
		rec.CalledAt = a.now()
	}
	rec.CalledAt = rec.CalledAt.UTC()
	if err := a.usage.InsertUsage(ctx, &rec); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}
