package diversity

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
)

// TrailingDays is the length of the historical comparison window.
const TrailingDays = 7

// Store reads a day's filled slots joined with their content.
type Store interface {
	ListScheduleEntries(ctx context.Context, day time.Time) ([]domain.ScheduleEntry, error)
}

// SnapshotCache holds computed snapshots keyed by day.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, day time.Time) (*Snapshot, bool, error)
	SetSnapshot(ctx context.Context, day time.Time, snap *Snapshot) error
}

// Comparison relates the day's score to a reference score.
type Comparison struct {
	Days  int     `json:"days"`
	Score float64 `json:"score"`
	Delta float64 `json:"delta"`
}

// Report is the full diversity answer for a day.
type Report struct {
	Day         string      `json:"day"`
	Snapshot    Snapshot    `json:"snapshot"`
	PreviousDay *Comparison `json:"previous_day,omitempty"`
	Trailing    *Comparison `json:"trailing,omitempty"`
	Alerts      []Alert     `json:"alerts"`
}

// Service computes and compares daily diversity reports.
type Service struct {
	store    Store
	cache    SnapshotCache
	universe []domain.Platform
	metrics  *metrics.Metrics
	logger   logger.Logger
}

// NewService creates the metrics service. cache may be nil.
func NewService(store Store, cache SnapshotCache, universe []domain.Platform, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{store: store, cache: cache, universe: universe, metrics: m, logger: log}
}

// GetDiversityMetrics scores day and compares it with the previous day and
// the trailing seven days. Days without filled slots are left out of the
// comparisons.
func (s *Service) GetDiversityMetrics(ctx context.Context, day time.Time) (Report, error) {
	snap, err := s.snapshot(ctx, day)
	if err != nil {
		return Report{}, err
	}

	report := Report{Day: domain.DayKey(day), Snapshot: snap, Alerts: append([]Alert{}, snap.Alerts...)}

	var (
		trailingSum  float64
		trailingDays int
	)
	for back := 1; back <= TrailingDays; back++ {
		past, pastErr := s.snapshot(ctx, day.AddDate(0, 0, -back))
		if pastErr != nil {
			return Report{}, pastErr
		}
		if past.FilledSlots == 0 {
			continue
		}
		if back == 1 {
			report.PreviousDay = &Comparison{Days: 1, Score: float64(past.Score), Delta: float64(snap.Score - past.Score)}
			if snap.FilledSlots > 0 {
				if alert, ok := ScoreDropAlert(past.Score, snap.Score); ok {
					report.Alerts = append(report.Alerts, alert)
				}
			}
		}
		trailingSum += float64(past.Score)
		trailingDays++
	}
	if trailingDays > 0 {
		avg := math.Round(trailingSum/float64(trailingDays)*10) / 10
		report.Trailing = &Comparison{Days: trailingDays, Score: avg, Delta: float64(snap.Score) - avg}
	}

	if snap.FilledSlots > 0 {
		s.metrics.SetDiversityScore(snap.Score)
	}
	return report, nil
}

func (s *Service) snapshot(ctx context.Context, day time.Time) (Snapshot, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.GetSnapshot(ctx, day)
		if err != nil {
			s.logger.Warn("Diversity cache read failed", logger.Day(day), logger.Error(err))
		} else if ok {
			return *cached, nil
		}
	}

	entries, err := s.store.ListScheduleEntries(ctx, day)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list schedule entries %s: %w", domain.DayKey(day), err)
	}
	snap := Compute(entries, s.universe)
	snap.Day = domain.DayKey(day)

	if s.cache != nil {
		if setErr := s.cache.SetSnapshot(ctx, day, &snap); setErr != nil {
			s.logger.Warn("Diversity cache write failed", logger.Day(day), logger.Error(setErr))
		}
	}
	return snap, nil
}
