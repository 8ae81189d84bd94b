// Package diversity scores how varied a day's schedule is and raises alerts
// when it is dominated by one platform or content type.
package diversity

import (
	"fmt"
	"math"
	"sort"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert types.
const (
	AlertPlatformDominance   = "platform_dominance"
	AlertConsecutivePlatform = "consecutive_platform"
	AlertPlatformSpacing     = "platform_spacing"
	AlertTypeImbalance       = "type_imbalance"
	AlertScoreDrop           = "score_drop"
)

const (
	alternationStart   = 100.0
	alternationPenalty = 5.0
	spacingMinSlots    = 6
)

// Alert is a threshold breach. Threshold and Actual share a unit.
type Alert struct {
	Type      string   `json:"type"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Threshold float64  `json:"threshold"`
	Actual    float64  `json:"actual"`
}

// Spacing summarizes the number of slots between repeat appearances of a
// platform. Adjacent repeats have spacing 0.
type Spacing struct {
	Repeats int     `json:"repeats"`
	Average float64 `json:"average"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

// Snapshot is the derived diversity view of one day's filled slots.
type Snapshot struct {
	Day                     string                     `json:"day,omitempty"`
	FilledSlots             int                        `json:"filled_slots"`
	PlatformDistribution    map[domain.Platform]int    `json:"platform_distribution"`
	ContentTypeDistribution map[domain.ContentType]int `json:"content_type_distribution"`
	PlatformVariance        float64                    `json:"platform_variance"`
	DominantPlatform        domain.Platform            `json:"dominant_platform,omitempty"`
	DominantPercentage      float64                    `json:"dominant_percentage"`
	ConsecutiveSamePlatform int                        `json:"consecutive_same_platform"`
	ConsecutiveRatio        float64                    `json:"consecutive_ratio"`
	Spacing                 Spacing                    `json:"spacing"`
	AlternationScore        float64                    `json:"alternation_score"`
	Score                   int                        `json:"score"`
	Alerts                  []Alert                    `json:"alerts"`
}

// Compute scores entries, which must be ordered by slot index. universe is
// the set of platforms the schedule could draw from; platforms present in
// entries are added to it. Variance is the population variance of per-platform
// counts over that set. An empty day scores 0 with no alerts.
func Compute(entries []domain.ScheduleEntry, universe []domain.Platform) Snapshot {
	snap := Snapshot{
		FilledSlots:             len(entries),
		PlatformDistribution:    make(map[domain.Platform]int),
		ContentTypeDistribution: make(map[domain.ContentType]int),
		AlternationScore:        alternationStart,
		Alerts:                  []Alert{},
	}
	if len(entries) == 0 {
		return snap
	}

	for _, e := range entries {
		snap.PlatformDistribution[e.Platform]++
		snap.ContentTypeDistribution[e.ContentType]++
	}

	snap.PlatformVariance = variance(snap.PlatformDistribution, universe)
	snap.DominantPlatform, snap.DominantPercentage = dominant(snap.PlatformDistribution, len(entries))

	run := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Platform == entries[i-1].Platform {
			snap.ConsecutiveSamePlatform++
		}
		if entries[i].ContentType == entries[i-1].ContentType {
			run++
			snap.AlternationScore -= alternationPenalty * float64(run)
		} else {
			run = 0
		}
	}
	snap.AlternationScore = math.Max(0, snap.AlternationScore)
	if len(entries) > 1 {
		snap.ConsecutiveRatio = float64(snap.ConsecutiveSamePlatform) / float64(len(entries)-1)
	}
	snap.Spacing = spacing(entries)

	total := math.Max(0, 40-5*snap.PlatformVariance) +
		math.Max(0, 30-100*snap.ConsecutiveRatio) +
		0.3*snap.AlternationScore
	snap.Score = int(math.Round(math.Min(100, math.Max(0, total))))

	snap.Alerts = snapshotAlerts(&snap)
	return snap
}

func variance(dist map[domain.Platform]int, universe []domain.Platform) float64 {
	set := make(map[domain.Platform]int, len(universe)+len(dist))
	for _, p := range universe {
		set[p] = 0
	}
	for p, n := range dist {
		set[p] = n
	}
	if len(set) == 0 {
		return 0
	}
	var sum float64
	for _, n := range set {
		sum += float64(n)
	}
	mean := sum / float64(len(set))
	var sq float64
	for _, n := range set {
		d := float64(n) - mean
		sq += d * d
	}
	return sq / float64(len(set))
}

func dominant(dist map[domain.Platform]int, total int) (domain.Platform, float64) {
	platforms := make([]domain.Platform, 0, len(dist))
	for p := range dist {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool {
		if dist[platforms[i]] != dist[platforms[j]] {
			return dist[platforms[i]] > dist[platforms[j]]
		}
		return platforms[i] < platforms[j]
	})
	top := platforms[0]
	return top, float64(dist[top]) / float64(total) * 100
}

func spacing(entries []domain.ScheduleEntry) Spacing {
	last := make(map[domain.Platform]int)
	var s Spacing
	sum := 0
	for i, e := range entries {
		if prev, ok := last[e.Platform]; ok {
			gap := i - prev - 1
			if s.Repeats == 0 || gap < s.Min {
				s.Min = gap
			}
			s.Max = max(s.Max, gap)
			sum += gap
			s.Repeats++
		}
		last[e.Platform] = i
	}
	if s.Repeats > 0 {
		s.Average = float64(sum) / float64(s.Repeats)
	}
	return s
}

func snapshotAlerts(s *Snapshot) []Alert {
	alerts := []Alert{}

	switch {
	case s.DominantPercentage > 70:
		alerts = append(alerts, Alert{
			Type: AlertPlatformDominance, Severity: SeverityCritical, Threshold: 70, Actual: s.DominantPercentage,
			Message: fmt.Sprintf("%s fills %.0f%% of the day", s.DominantPlatform, s.DominantPercentage),
		})
	case s.DominantPercentage > 50:
		alerts = append(alerts, Alert{
			Type: AlertPlatformDominance, Severity: SeverityHigh, Threshold: 50, Actual: s.DominantPercentage,
			Message: fmt.Sprintf("%s fills %.0f%% of the day", s.DominantPlatform, s.DominantPercentage),
		})
	}

	ratio := s.ConsecutiveRatio * 100
	switch {
	case ratio > 40:
		alerts = append(alerts, Alert{
			Type: AlertConsecutivePlatform, Severity: SeverityHigh, Threshold: 40, Actual: ratio,
			Message: fmt.Sprintf("%d back-to-back same-platform slots", s.ConsecutiveSamePlatform),
		})
	case ratio > 20:
		alerts = append(alerts, Alert{
			Type: AlertConsecutivePlatform, Severity: SeverityMedium, Threshold: 20, Actual: ratio,
			Message: fmt.Sprintf("%d back-to-back same-platform slots", s.ConsecutiveSamePlatform),
		})
	}

	if s.FilledSlots >= spacingMinSlots && s.Spacing.Repeats > 0 {
		switch {
		case s.Spacing.Average < 1:
			alerts = append(alerts, Alert{
				Type: AlertPlatformSpacing, Severity: SeverityHigh, Threshold: 1, Actual: s.Spacing.Average,
				Message: fmt.Sprintf("repeat platforms average %.1f slots apart", s.Spacing.Average),
			})
		case s.Spacing.Average < 2:
			alerts = append(alerts, Alert{
				Type: AlertPlatformSpacing, Severity: SeverityMedium, Threshold: 2, Actual: s.Spacing.Average,
				Message: fmt.Sprintf("repeat platforms average %.1f slots apart", s.Spacing.Average),
			})
		}
	}

	switch {
	case s.AlternationScore < 50:
		alerts = append(alerts, Alert{
			Type: AlertTypeImbalance, Severity: SeverityHigh, Threshold: 50, Actual: s.AlternationScore,
			Message: fmt.Sprintf("content type alternation score %.0f", s.AlternationScore),
		})
	case s.AlternationScore < 70:
		alerts = append(alerts, Alert{
			Type: AlertTypeImbalance, Severity: SeverityMedium, Threshold: 70, Actual: s.AlternationScore,
			Message: fmt.Sprintf("content type alternation score %.0f", s.AlternationScore),
		})
	}
	return alerts
}

// ScoreDropAlert compares a day's score with the previous day's. It returns
// false when there is no drop worth reporting.
func ScoreDropAlert(previous, current int) (Alert, bool) {
	if previous <= 0 || current >= previous {
		return Alert{}, false
	}
	drop := float64(previous-current) / float64(previous) * 100
	msg := fmt.Sprintf("diversity score fell from %d to %d", previous, current)
	switch {
	case drop > 50:
		return Alert{Type: AlertScoreDrop, Severity: SeverityCritical, Threshold: 50, Actual: drop, Message: msg}, true
	case drop > 30:
		return Alert{Type: AlertScoreDrop, Severity: SeverityHigh, Threshold: 30, Actual: drop, Message: msg}, true
	default:
		return Alert{}, false
	}
}
