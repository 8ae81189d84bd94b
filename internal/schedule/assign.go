package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/selector"
)

// Assignment outcomes.
const (
	OutcomeAssigned      = "assigned"
	OutcomeAlreadyFilled = "already_filled"
	OutcomeNoContent     = "no_eligible_content"
	OutcomeLostRace      = "lost_race"
)

// AssignResult reports a single-slot fill. Only storage failures are errors.
type AssignResult struct {
	Assigned bool     `json:"assigned"`
	Outcome  string   `json:"outcome"`
	Slot     SlotView `json:"slot"`
}

// SelectAndAssignNext fills one slot of day, typically an empty slot that is
// due soon. A filled slot is left unchanged. Platforms already on the day's
// other slots are avoided when the backlog allows it.
func (s *Scheduler) SelectAndAssignNext(ctx context.Context, day time.Time, index int) (AssignResult, error) {
	if !ValidIndex(index) {
		return AssignResult{}, fmt.Errorf("%w: %d", domain.ErrInvalidSlot, index)
	}
	day = domain.DayOf(day, s.loc)
	slots, err := s.ensureSlots(ctx, day)
	if err != nil {
		return AssignResult{}, err
	}
	contentByID, err := s.contentFor(ctx, slots)
	if err != nil {
		return AssignResult{}, err
	}

	slot := &slots[index]
	if slot.Filled() {
		item := contentPtr(contentByID, slot.ContentID)
		return AssignResult{Outcome: OutcomeAlreadyFilled, Slot: s.view(slot, item, s.now())}, nil
	}

	c := selector.Constraints{}
	for _, i := range neighborOrder(index) {
		if item, ok := contentByID[idOrNil(slots[i].ContentID)]; ok {
			c.AvoidPlatforms = append(c.AvoidPlatforms, item.Platform)
			c.ExcludeIDs = append(c.ExcludeIDs, item.ID)
		}
	}

	pick, outcome, err := s.fillSlot(ctx, day, slot, c)
	if err != nil {
		return AssignResult{}, err
	}

	res := AssignResult{Outcome: outcome}
	switch outcome {
	case metrics.OutcomeFilled:
		res.Assigned = true
		res.Outcome = OutcomeAssigned
		s.invalidate(ctx, day)
		res.Slot = s.view(slot, &pick.Item, s.now())
	case metrics.OutcomeNoContent:
		res.Outcome = OutcomeNoContent
		res.Slot = s.view(slot, nil, s.now())
	case metrics.OutcomeLostRace:
		res.Outcome = OutcomeLostRace
		fresh, listErr := s.store.ListSlots(ctx, day)
		if listErr != nil {
			return AssignResult{}, fmt.Errorf("list slots: %w", listErr)
		}
		var item *domain.ContentItem
		if fresh[index].ContentID != nil {
			if got, getErr := s.store.GetContent(ctx, *fresh[index].ContentID); getErr == nil {
				item = got
			} else if !errors.Is(getErr, domain.ErrNotFound) {
				return AssignResult{}, fmt.Errorf("get content: %w", getErr)
			}
		}
		res.Slot = s.view(&fresh[index], item, s.now())
	}
	return res, nil
}

// neighborOrder lists the other slot indexes, farthest from index first, so
// the relaxation fallback reuses distant platforms before adjacent ones.
func neighborOrder(index int) []int {
	out := make([]int, 0, domain.SlotsPerDay-1)
	for dist := domain.SlotsPerDay - 1; dist >= 1; dist-- {
		if i := index - dist; i >= 0 {
			out = append(out, i)
		}
		if i := index + dist; i < domain.SlotsPerDay {
			out = append(out, i)
		}
	}
	return out
}

func contentPtr(m map[uuid.UUID]domain.ContentItem, id *uuid.UUID) *domain.ContentItem {
	if id == nil {
		return nil
	}
	if c, ok := m[*id]; ok {
		return &c
	}
	return nil
}
