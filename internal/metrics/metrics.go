// Package metrics exposes Prometheus instrumentation for the scheduler.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "social_scheduler"
)

// Outcome label values.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeFilled    = "filled"
	OutcomeLostRace  = "lost_race"
	OutcomeNoContent = "no_content"
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeTimeout   = "timeout"
	OutcomeOpen      = "circuit_open"
	OutcomeRecorded  = "recorded"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	ContentSubmitted *prometheus.CounterVec
	ScanDecisions    *prometheus.CounterVec
	ScanCalls        *prometheus.CounterVec
	ScanItems        *prometheus.CounterVec
	SlotFills        *prometheus.CounterVec
	Posts            *prometheus.CounterVec
	DiversityScore   prometheus.Gauge
	DaysOfContent    prometheus.Gauge
	CycleDuration    prometheus.Histogram
}

// NewMetrics registers all collectors on reg, or the default registerer when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	m := &Metrics{}
	m.initQueue(f)
	m.initScan(f)
	m.initSchedule(f)
	return m
}

func (m *Metrics) initQueue(f promauto.Factory) {
	m.ContentSubmitted = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "queue",
		Name:      "submissions_total",
		Help:      "Content submissions by platform and outcome",
	}, []string{"platform", "outcome"})
	m.DaysOfContent = f.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "queue",
		Name:      "days_of_content",
		Help:      "Approved unposted backlog divided by slots per day",
	})
}

func (m *Metrics) initScan(f promauto.Factory) {
	m.ScanDecisions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scan",
		Name:      "decisions_total",
		Help:      "Conservation advisor decisions",
	}, []string{"platform", "outcome"})
	m.ScanCalls = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scan",
		Name:      "calls_total",
		Help:      "Upstream scan calls by outcome",
	}, []string{"platform", "outcome"})
	m.ScanItems = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scan",
		Name:      "items_total",
		Help:      "Items returned by upstream scans",
	}, []string{"platform"})
}

func (m *Metrics) initSchedule(f promauto.Factory) {
	m.SlotFills = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "schedule",
		Name:      "slot_fills_total",
		Help:      "Slot fill attempts by outcome",
	}, []string{"outcome"})
	m.Posts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "posting",
		Name:      "posts_total",
		Help:      "Post attempts by platform and outcome",
	}, []string{"platform", "outcome"})
	m.DiversityScore = f.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "diversity",
		Name:      "score",
		Help:      "Diversity score of the most recently evaluated day",
	})
	m.CycleDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Duration of a full scheduling cycle",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
}

func (m *Metrics) RecordSubmission(platform, outcome string) {
	if m == nil {
		return
	}
	m.ContentSubmitted.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) RecordScanDecision(platform, outcome string) {
	if m == nil {
		return
	}
	m.ScanDecisions.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) RecordScanCall(platform, outcome string, items int) {
	if m == nil {
		return
	}
	m.ScanCalls.WithLabelValues(platform, outcome).Inc()
	if items > 0 {
		m.ScanItems.WithLabelValues(platform).Add(float64(items))
	}
}

func (m *Metrics) RecordSlotFill(outcome string) {
	if m == nil {
		return
	}
	m.SlotFills.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPost(platform, outcome string) {
	if m == nil {
		return
	}
	m.Posts.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) SetDiversityScore(score int) {
	if m == nil {
		return
	}
	m.DiversityScore.Set(float64(score))
}

func (m *Metrics) SetDaysOfContent(days float64) {
	if m == nil {
		return
	}
	m.DaysOfContent.Set(days)
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}
