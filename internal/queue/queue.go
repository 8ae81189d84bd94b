// Package queue ingests candidate content and reports backlog health.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/dedup"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
)

// Store persists content items.
type Store interface {
	dedup.Index
	// InsertContent returns domain.ErrConstraintViolation when the hash exists.
	InsertContent(ctx context.Context, item *domain.ContentItem) error
	ApproveContent(ctx context.Context, id uuid.UUID) error
	// CountApprovedUnposted leaves out content held by slots whose target
	// is before now.
	CountApprovedUnposted(ctx context.Context, now time.Time) ([]domain.PlatformCount, error)
}

// SubmitResult reports what happened to a submission. Rejections are values,
// not errors.
type SubmitResult struct {
	Accepted  bool                `json:"accepted"`
	Item      *domain.ContentItem `json:"item,omitempty"`
	Duplicate dedup.Result        `json:"duplicate"`
}

// Health is the backlog summary.
type Health struct {
	ApprovedCount     int             `json:"approved_count"`
	DaysOfContent     float64         `json:"days_of_content"`
	PlatformBreakdown []PlatformShare `json:"platform_breakdown"`
	CheckedAt         time.Time       `json:"checked_at"`
}

// PlatformShare is one platform's part of the approved backlog.
type PlatformShare struct {
	Platform   domain.Platform `json:"platform"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// Service accepts candidates into the content queue.
type Service struct {
	store    Store
	detector *dedup.Detector
	metrics  *metrics.Metrics
	logger   logger.Logger
	now      func() time.Time
}

// NewService creates a queue service.
func NewService(store Store, detector *dedup.Detector, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{store: store, detector: detector, metrics: m, logger: log, now: time.Now}
}

// Submit validates, de-duplicates and stores a candidate. A unique-hash
// violation on insert means a concurrent writer stored the same content
// first and is reported as a duplicate.
func (s *Service) Submit(ctx context.Context, c domain.Candidate) (SubmitResult, error) {
	if err := c.Validate(); err != nil {
		s.metrics.RecordSubmission(string(c.Platform), metrics.OutcomeInvalid)
		return SubmitResult{}, err
	}

	fp := dedup.FingerprintOf(c)
	dup, err := s.detector.CheckFingerprint(ctx, fp)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("check duplicate: %w", err)
	}
	if dup.IsDuplicate {
		s.rejected(c, dup)
		return SubmitResult{Duplicate: dup}, nil
	}

	now := s.now().UTC()
	item := &domain.ContentItem{
		ID:             uuid.New(),
		Text:           domain.StringPtr(c.Text),
		ImageURL:       domain.StringPtr(fp.ImageURL),
		VideoURL:       domain.StringPtr(fp.VideoURL),
		Platform:       c.Platform,
		ContentType:    c.ContentType,
		SourceURL:      fp.CanonicalURL,
		Author:         c.Author,
		ContentHash:    fp.Hash,
		NormalizedText: fp.NormalizedText,
		TextPrefix:     fp.Prefix,
		Approved:       c.Approved,
		Confidence:     c.Confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if insertErr := s.store.InsertContent(ctx, item); insertErr != nil {
		if !errors.Is(insertErr, domain.ErrConstraintViolation) {
			return SubmitResult{}, fmt.Errorf("insert content: %w", insertErr)
		}
		dup = dedup.Result{IsDuplicate: true, Reason: dedup.ReasonContentHash, Confidence: 1.0}
		if id, ok, findErr := s.store.FindByHash(ctx, fp.Hash); findErr == nil && ok {
			dup.MatchedID = id
		}
		s.rejected(c, dup)
		return SubmitResult{Duplicate: dup}, nil
	}

	s.detector.Remember(ctx, fp.Hash, item.ID)
	s.metrics.RecordSubmission(string(c.Platform), metrics.OutcomeAccepted)
	s.logger.Debug("Content accepted",
		logger.ContentID(item.ID),
		logger.Platform(string(item.Platform)),
		logger.String("content_type", string(item.ContentType)),
	)
	return SubmitResult{Accepted: true, Item: item}, nil
}

func (s *Service) rejected(c domain.Candidate, dup dedup.Result) {
	s.metrics.RecordSubmission(string(c.Platform), metrics.OutcomeDuplicate)
	s.logger.Info("Duplicate content rejected",
		logger.Platform(string(c.Platform)),
		logger.String("reason", dup.Reason),
		logger.ContentID(dup.MatchedID),
		logger.Float64("confidence", dup.Confidence),
	)
}

// Approve marks an item as moderated and eligible for scheduling.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) error {
	if err := s.store.ApproveContent(ctx, id); err != nil {
		return fmt.Errorf("approve content %s: %w", id, err)
	}
	return nil
}

// GetQueueHealth aggregates the approved, unposted backlog.
func (s *Service) GetQueueHealth(ctx context.Context) (Health, error) {
	now := s.now()
	counts, err := s.store.CountApprovedUnposted(ctx, now)
	if err != nil {
		return Health{}, fmt.Errorf("count backlog: %w", err)
	}

	h := Health{CheckedAt: now.UTC(), PlatformBreakdown: make([]PlatformShare, 0, len(counts))}
	for _, c := range counts {
		h.ApprovedCount += c.Count
	}
	for _, c := range counts {
		share := PlatformShare{Platform: c.Platform, Count: c.Count}
		if h.ApprovedCount > 0 {
			share.Percentage = float64(c.Count) / float64(h.ApprovedCount) * 100
		}
		h.PlatformBreakdown = append(h.PlatformBreakdown, share)
	}
	sort.Slice(h.PlatformBreakdown, func(i, j int) bool {
		a, b := h.PlatformBreakdown[i], h.PlatformBreakdown[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Platform < b.Platform
	})
	h.DaysOfContent = float64(h.ApprovedCount) / domain.SlotsPerDay
	s.metrics.SetDaysOfContent(h.DaysOfContent)
	return h, nil
}
