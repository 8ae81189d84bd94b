package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
)

// Match methods.
const (
	MatchSlotIndex     = "slot_index"
	MatchNearestTarget = "nearest_target"
)

// PostedEvent is an externally recorded post.
type PostedEvent struct {
	ContentID uuid.UUID `json:"content_id" binding:"required"`
	PostedAt  time.Time `json:"posted_at"  binding:"required"`
	// Day and SlotIndex identify the slot exactly when both are known.
	Day       string `json:"day,omitempty"`
	SlotIndex *int   `json:"slot_index,omitempty"`
}

// MatchResult reports whether an event was attached to a slot.
type MatchResult struct {
	Attached  bool          `json:"attached"`
	Method    string        `json:"method,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Day       string        `json:"day,omitempty"`
	SlotIndex int           `json:"slot_index"`
	Offset    time.Duration `json:"offset_ns"`
}

// RecordPosted attaches a posted event to a slot: the named slot index when
// given, otherwise the unposted slot whose target is nearest the event within
// MatchTolerance. An unmatched event is reported, not attached, and leaves
// slots in their time-derived state. Posting content or a slot twice returns
// domain.ErrAlreadyPosted.
func (s *Scheduler) RecordPosted(ctx context.Context, ev PostedEvent) (MatchResult, error) {
	if ev.ContentID == uuid.Nil || ev.PostedAt.IsZero() {
		return MatchResult{}, fmt.Errorf("%w: posted event needs content id and posted_at", domain.ErrInvalidInput)
	}

	item, err := s.store.GetContent(ctx, ev.ContentID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("get content %s: %w", ev.ContentID, err)
	}
	if item.Posted {
		return MatchResult{}, fmt.Errorf("content %s: %w", ev.ContentID, domain.ErrAlreadyPosted)
	}

	slot, method, err := s.matchSlot(ctx, ev)
	if err != nil {
		return MatchResult{}, err
	}
	if slot == nil {
		s.logger.Info("Posted event matched no slot",
			logger.ContentID(ev.ContentID),
			logger.Time("posted_at", ev.PostedAt),
		)
		return MatchResult{Reason: "no slot within tolerance"}, nil
	}

	res := MatchResult{
		Method:    method,
		Day:       domain.DayKey(domain.DayOf(slot.TargetAt, s.loc)),
		SlotIndex: slot.SlotIndex,
		Offset:    ev.PostedAt.Sub(slot.TargetAt),
	}

	err = s.store.MarkPosted(ctx, slot.ID, ev.ContentID, ev.PostedAt)
	switch {
	case errors.Is(err, domain.ErrConstraintViolation):
		res.Reason = "slot holds different content"
		return res, nil
	case err != nil:
		return MatchResult{}, fmt.Errorf("mark posted: %w", err)
	}

	res.Attached = true
	s.metrics.RecordPost(string(item.Platform), metrics.OutcomeRecorded)
	s.invalidate(ctx, domain.DayOf(slot.TargetAt, s.loc))
	s.logger.Info("Post recorded",
		logger.ContentID(ev.ContentID),
		logger.SlotIndex(slot.SlotIndex),
		logger.String("method", method),
		logger.Duration("offset", res.Offset),
	)
	return res, nil
}

func (s *Scheduler) matchSlot(ctx context.Context, ev PostedEvent) (*domain.ScheduledSlot, string, error) {
	if ev.SlotIndex != nil {
		if !ValidIndex(*ev.SlotIndex) {
			return nil, "", fmt.Errorf("%w: %d", domain.ErrInvalidSlot, *ev.SlotIndex)
		}
		day := domain.DayOf(ev.PostedAt, s.loc)
		if ev.Day != "" {
			parsed, err := domain.ParseDay(ev.Day, s.loc)
			if err != nil {
				return nil, "", err
			}
			day = parsed
		}
		slots, err := s.store.ListSlots(ctx, day)
		if err != nil {
			return nil, "", fmt.Errorf("list slots: %w", err)
		}
		for i := range slots {
			if slots[i].SlotIndex != *ev.SlotIndex {
				continue
			}
			if slots[i].PostedAt != nil {
				return nil, "", fmt.Errorf("slot %d on %s: %w", *ev.SlotIndex, domain.DayKey(day), domain.ErrAlreadyPosted)
			}
			return &slots[i], MatchSlotIndex, nil
		}
	}

	candidates, err := s.store.ListSlotsBetween(ctx, ev.PostedAt.Add(-MatchTolerance), ev.PostedAt.Add(MatchTolerance))
	if err != nil {
		return nil, "", fmt.Errorf("list slots near %s: %w", ev.PostedAt.Format(time.RFC3339), err)
	}
	var best *domain.ScheduledSlot
	var bestGap time.Duration
	for i := range candidates {
		c := &candidates[i]
		if c.PostedAt != nil || (c.ContentID != nil && *c.ContentID != ev.ContentID) {
			continue
		}
		gap := absDuration(ev.PostedAt.Sub(c.TargetAt))
		if best == nil || gap < bestGap {
			best, bestGap = c, gap
		}
	}
	if best == nil {
		return nil, "", nil
	}
	return best, MatchNearestTarget, nil
}

// DueSlots returns filled, unposted slots whose target lies in [now-grace, now].
func (s *Scheduler) DueSlots(ctx context.Context, now time.Time, grace time.Duration) ([]domain.ScheduledSlot, error) {
	slots, err := s.store.ListSlotsBetween(ctx, now.Add(-grace), now)
	if err != nil {
		return nil, fmt.Errorf("list due slots: %w", err)
	}
	due := slots[:0]
	for _, sl := range slots {
		if sl.Filled() && sl.PostedAt == nil {
			due = append(due, sl)
		}
	}
	return due, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
