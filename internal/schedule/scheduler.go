// Package schedule materializes the six daily posting slots, fills them with
// selected content and tracks their status.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/selector"
)

// Store persists slots and the content they reference.
type Store interface {
	ListSlots(ctx context.Context, day time.Time) ([]domain.ScheduledSlot, error)
	// CreateSlots inserts slots, ignoring any (day, index) that already exists.
	CreateSlots(ctx context.Context, slots []domain.ScheduledSlot) error
	// ClaimAndAssign claims content and writes it into an empty slot in one
	// transaction. A lost race yields domain.ErrConstraintViolation.
	ClaimAndAssign(ctx context.Context, slotID, contentID uuid.UUID, reasoning string) error
	// MarkPosted flags slot and content posted in one transaction.
	MarkPosted(ctx context.Context, slotID, contentID uuid.UUID, postedAt time.Time) error
	GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)
	ListContentByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ContentItem, error)
	ListSlotsBetween(ctx context.Context, from, to time.Time) ([]domain.ScheduledSlot, error)
}

// Picker selects content for slots.
type Picker interface {
	Select(ctx context.Context, n int, c selector.Constraints) ([]selector.Pick, error)
}

// Invalidator drops cached derived data for a day.
type Invalidator interface {
	InvalidateDay(ctx context.Context, day time.Time) error
}

// Scheduler owns the daily slots: it materializes days, fills slots and
// attaches posts to them.
type Scheduler struct {
	store       Store
	picker      Picker
	loc         *time.Location
	universe    []domain.Platform
	invalidator Invalidator
	metrics     *metrics.Metrics
	logger      logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInvalidator drops cached diversity data whenever a day changes.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Scheduler) { s.invalidator = inv }
}

// WithMetrics records slot fill outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler operating in loc. universe is the set of
// platforms used for the forecast's diversity summary.
func NewScheduler(store Store, picker Picker, loc *time.Location, universe []domain.Platform, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		picker:   picker,
		loc:      loc,
		universe: universe,
		logger:   log,
		tracer:   otel.Tracer("social-scheduler/schedule"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the operating timezone.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Today returns the current calendar day in the operating timezone.
func (s *Scheduler) Today() time.Time {
	return domain.DayOf(s.now(), s.loc)
}

// GetOrMaterializeSchedule returns the day's six slots, creating them on
// first read and filling any empty slot whose target is still ahead.
// Filled and posted slots are never reassigned, so repeated calls with no
// intervening posts return the same assignments.
func (s *Scheduler) GetOrMaterializeSchedule(ctx context.Context, day time.Time) (Schedule, error) {
	day = domain.DayOf(day, s.loc)
	slots, err := s.ensureSlots(ctx, day)
	if err != nil {
		return Schedule{}, err
	}

	filled, err := s.fillEmpty(ctx, day, slots)
	if err != nil {
		return Schedule{}, err
	}
	if filled > 0 {
		if slots, err = s.store.ListSlots(ctx, day); err != nil {
			return Schedule{}, fmt.Errorf("list slots: %w", err)
		}
		s.invalidate(ctx, day)
	}
	return s.buildSchedule(ctx, day, slots)
}

// ensureSlots creates any missing slot rows for day and returns all six.
func (s *Scheduler) ensureSlots(ctx context.Context, day time.Time) ([]domain.ScheduledSlot, error) {
	slots, err := s.store.ListSlots(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if len(slots) == domain.SlotsPerDay {
		return slots, nil
	}

	now := s.now().UTC()
	fresh := make([]domain.ScheduledSlot, 0, domain.SlotsPerDay)
	for i := range domain.SlotsPerDay {
		target, targetErr := TargetInstant(day, i, s.loc)
		if targetErr != nil {
			return nil, targetErr
		}
		fresh = append(fresh, domain.ScheduledSlot{
			ID:        uuid.New(),
			Day:       day,
			SlotIndex: i,
			TargetAt:  target.UTC(),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if createErr := s.store.CreateSlots(ctx, fresh); createErr != nil {
		return nil, fmt.Errorf("create slots: %w", createErr)
	}

	slots, err = s.store.ListSlots(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	if len(slots) != domain.SlotsPerDay {
		return nil, fmt.Errorf("materialize %s: expected %d slots, found %d", domain.DayKey(day), domain.SlotsPerDay, len(slots))
	}
	s.logger.Debug("Slots materialized", logger.Day(day))
	return slots, nil
}

// fillEmpty assigns content to empty future slots in label order, one
// selection per slot. It stops early when the backlog runs dry.
func (s *Scheduler) fillEmpty(ctx context.Context, day time.Time, slots []domain.ScheduledSlot) (int, error) {
	now := s.now()
	contentByID, err := s.contentFor(ctx, slots)
	if err != nil {
		return 0, err
	}

	var (
		claimed []uuid.UUID
		used    []domain.Platform
		filled  int
	)
	for i := range slots {
		if c, ok := contentByID[idOrNil(slots[i].ContentID)]; ok {
			used = append(used, c.Platform)
		}
	}

	for i := range slots {
		slot := &slots[i]
		if slot.Filled() || !slot.TargetAt.After(now) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return filled, ctxErr
		}

		pick, outcome, fillErr := s.fillSlot(ctx, day, slot, selector.Constraints{ExcludeIDs: claimed, AvoidPlatforms: used})
		if fillErr != nil {
			return filled, fillErr
		}
		switch outcome {
		case metrics.OutcomeFilled:
			filled++
			claimed = append(claimed, pick.Item.ID)
			used = append(used, pick.Item.Platform)
		case metrics.OutcomeNoContent:
			return filled, nil
		}
	}
	return filled, nil
}

// fillSlot selects and claims content for one slot. Expected outcomes are
// returned as metrics outcome labels; only storage failures are errors.
func (s *Scheduler) fillSlot(ctx context.Context, day time.Time, slot *domain.ScheduledSlot, c selector.Constraints) (selector.Pick, string, error) {
	ctx, span := s.tracer.Start(ctx, "schedule.fill_slot",
		trace.WithAttributes(
			attribute.String("day", domain.DayKey(day)),
			attribute.Int("slot_index", slot.SlotIndex),
		),
	)
	defer span.End()

	log := s.logger.With(logger.Day(day), logger.SlotIndex(slot.SlotIndex))

	picks, err := s.picker.Select(ctx, 1, c)
	if errors.Is(err, domain.ErrNoEligibleContent) {
		s.metrics.RecordSlotFill(metrics.OutcomeNoContent)
		log.Warn("No eligible content for slot")
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeNoContent))
		return selector.Pick{}, metrics.OutcomeNoContent, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return selector.Pick{}, "", fmt.Errorf("select for slot %d: %w", slot.SlotIndex, err)
	}

	pick := picks[0]
	reasoning := fmt.Sprintf("%s slot: %s/%s %s", Labels[slot.SlotIndex], pick.Item.Platform, pick.Item.ContentType, pick.Score)
	if pick.Relaxed {
		reasoning += "; platform repeat allowed, no other platform eligible"
	}

	err = s.store.ClaimAndAssign(ctx, slot.ID, pick.Item.ID, reasoning)
	if errors.Is(err, domain.ErrConstraintViolation) {
		s.metrics.RecordSlotFill(metrics.OutcomeLostRace)
		log.Info("Slot fill lost to a concurrent writer", logger.ContentID(pick.Item.ID))
		span.SetAttributes(attribute.String("outcome", metrics.OutcomeLostRace))
		return pick, metrics.OutcomeLostRace, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pick, "", fmt.Errorf("assign slot %d: %w", slot.SlotIndex, err)
	}

	id := pick.Item.ID
	slot.ContentID = &id
	slot.Reasoning = reasoning
	s.metrics.RecordSlotFill(metrics.OutcomeFilled)
	span.SetAttributes(
		attribute.String("outcome", metrics.OutcomeFilled),
		attribute.String("content_id", id.String()),
		attribute.String("platform", string(pick.Item.Platform)),
	)
	log.Info("Slot filled",
		logger.ContentID(id),
		logger.Platform(string(pick.Item.Platform)),
		logger.Float64("score", pick.Score.Total),
	)
	return pick, metrics.OutcomeFilled, nil
}

func (s *Scheduler) contentFor(ctx context.Context, slots []domain.ScheduledSlot) (map[uuid.UUID]domain.ContentItem, error) {
	ids := make([]uuid.UUID, 0, len(slots))
	for i := range slots {
		if slots[i].ContentID != nil {
			ids = append(ids, *slots[i].ContentID)
		}
	}
	out := make(map[uuid.UUID]domain.ContentItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	items, err := s.store.ListContentByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load slot content: %w", err)
	}
	for i := range items {
		out[items[i].ID] = items[i]
	}
	return out, nil
}

func (s *Scheduler) invalidate(ctx context.Context, day time.Time) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateDay(ctx, day); err != nil {
		s.logger.Warn("Diversity cache invalidation failed", logger.Day(day), logger.Error(err))
	}
}

func idOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
