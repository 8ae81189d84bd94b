package posting

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
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
)

const defaultDueGrace = 45 * time.Minute

// Scheduler is the part of the slot scheduler the worker drives.
type Scheduler interface {
	DueSlots(ctx context.Context, now time.Time, grace time.Duration) ([]domain.ScheduledSlot, error)
	RecordPosted(ctx context.Context, ev schedule.PostedEvent) (schedule.MatchResult, error)
}

// ContentReader loads content by id.
type ContentReader interface {
	GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)
}

// Slot outcomes.
const (
	OutcomePosted        = "posted"
	OutcomeFailed        = "failed"
	OutcomeAlreadyPosted = "already_posted"
)

// SlotOutcome is what happened to one due slot.
type SlotOutcome struct {
	Day       string          `json:"day"`
	SlotIndex int             `json:"slot_index"`
	ContentID uuid.UUID       `json:"content_id"`
	Platform  domain.Platform `json:"platform,omitempty"`
	Outcome   string          `json:"outcome"`
	Error     string          `json:"error,omitempty"`
}

// Report summarizes one PostDue pass.
type Report struct {
	Posted  int           `json:"posted"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Slots   []SlotOutcome `json:"slots"`
}

// Worker posts due slots and records the result on the schedule.
type Worker struct {
	scheduler Scheduler
	content   ContentReader
	poster    Poster
	grace     time.Duration
	metrics   *metrics.Metrics
	logger    logger.Logger
	tracer    trace.Tracer
}

// NewWorker creates a posting worker. A non-positive grace uses 45 minutes.
func NewWorker(sched Scheduler, content ContentReader, poster Poster, grace time.Duration, m *metrics.Metrics, log logger.Logger) *Worker {
	if grace <= 0 {
		grace = defaultDueGrace
	}
	return &Worker{
		scheduler: sched,
		content:   content,
		poster:    poster,
		grace:     grace,
		metrics:   m,
		logger:    log,
		tracer:    otel.Tracer("social-scheduler/posting"),
	}
}

// PostDue publishes every filled, unposted slot whose target fell within the
// grace window before now. A failed post is recorded and the remaining slots
// still run; only storage unavailability stops the pass. A slot whose publish
// succeeded but whose posted record failed is published again by a later
// pass, so delivery is at least once.
func (w *Worker) PostDue(ctx context.Context, now time.Time) (Report, error) {
	due, err := w.scheduler.DueSlots(ctx, now, w.grace)
	if err != nil {
		return Report{}, err
	}

	report := Report{Slots: make([]SlotOutcome, 0, len(due))}
	for i := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		out, postErr := w.postOne(ctx, &due[i])
		if postErr != nil && domain.IsFatal(postErr) {
			return report, postErr
		}
		switch out.Outcome {
		case OutcomePosted:
			report.Posted++
		case OutcomeAlreadyPosted:
			report.Skipped++
		default:
			report.Failed++
		}
		report.Slots = append(report.Slots, out)
	}
	return report, nil
}

func (w *Worker) postOne(ctx context.Context, slot *domain.ScheduledSlot) (SlotOutcome, error) {
	out := SlotOutcome{
		Day:       domain.DayKey(slot.Day),
		SlotIndex: slot.SlotIndex,
		ContentID: *slot.ContentID,
	}
	ctx, span := w.tracer.Start(ctx, "posting.post",
		trace.WithAttributes(
			attribute.String("day", out.Day),
			attribute.Int("slot_index", out.SlotIndex),
			attribute.String("content_id", out.ContentID.String()),
		),
	)
	defer span.End()

	log := w.logger.With(
		logger.String("day", out.Day),
		logger.SlotIndex(out.SlotIndex),
		logger.ContentID(out.ContentID),
	)
	fail := func(err error) (SlotOutcome, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		out.Outcome, out.Error = OutcomeFailed, err.Error()
		return out, err
	}

	item, err := w.content.GetContent(ctx, out.ContentID)
	if err != nil {
		log.Error("Failed to load slot content", logger.Error(err))
		return fail(fmt.Errorf("get content: %w", err))
	}
	out.Platform = item.Platform
	log = log.With(logger.Platform(string(item.Platform)))

	if item.Posted {
		out.Outcome, out.Error = OutcomeAlreadyPosted, domain.ErrAlreadyPosted.Error()
		log.Warn("Refusing to post content twice")
		return out, domain.ErrAlreadyPosted
	}

	res, err := w.poster.Post(ctx, Request{Item: item, SlotID: slot.ID, Day: out.Day, SlotIndex: out.SlotIndex})
	if err != nil {
		w.metrics.RecordPost(string(item.Platform), metrics.OutcomeFailure)
		log.Error("Post failed", logger.Error(err))
		return fail(fmt.Errorf("%w: %w", domain.ErrUpstreamFailure, err))
	}

	idx := slot.SlotIndex
	match, err := w.scheduler.RecordPosted(ctx, schedule.PostedEvent{
		ContentID: item.ID,
		PostedAt:  res.PostedAt,
		Day:       out.Day,
		SlotIndex: &idx,
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyPosted):
		out.Outcome, out.Error = OutcomeAlreadyPosted, err.Error()
		log.Warn("Slot was posted concurrently", logger.Error(err))
		return out, err
	case err != nil:
		// The slot stays due and is published again on the next pass.
		log.Error("Post sent but not recorded", logger.Error(err))
		return fail(fmt.Errorf("record posted: %w", err))
	case !match.Attached:
		log.Warn("Post sent but slot not attached", logger.String("reason", match.Reason))
		return fail(fmt.Errorf("record posted: %s", match.Reason))
	}

	w.metrics.RecordPost(string(item.Platform), metrics.OutcomeSuccess)
	span.SetAttributes(attribute.Int64("receivers", res.Receivers))
	log.Info("Slot posted", logger.Int64("receivers", res.Receivers))
	out.Outcome = OutcomePosted
	return out, nil
}
