package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

func sameDay(a, b time.Time) bool {
	return domain.DayKey(a) == domain.DayKey(b)
}

func (s *Store) ListSlots(_ context.Context, day time.Time) ([]domain.ScheduledSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledSlot
	for _, sl := range s.slots {
		if sameDay(sl.Day, day) {
			out = append(out, *sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out, nil
}

// CreateSlots inserts slots, skipping any (day, index) that already exists.
func (s *Store) CreateSlots(_ context.Context, slots []domain.ScheduledSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range slots {
		if s.slotAt(slots[i].Day, slots[i].SlotIndex) != nil {
			continue
		}
		cp := slots[i]
		s.slots[cp.ID] = &cp
	}
	return nil
}

func (s *Store) slotAt(day time.Time, index int) *domain.ScheduledSlot {
	for _, sl := range s.slots {
		if sl.SlotIndex == index && sameDay(sl.Day, day) {
			return sl
		}
	}
	return nil
}

// ClaimAndAssign atomically claims content and writes it into an empty slot.
func (s *Store) ClaimAndAssign(_ context.Context, slotID, contentID uuid.UUID, reasoning string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotID]
	if !ok {
		return domain.ErrNotFound
	}
	c, ok := s.content[contentID]
	if !ok {
		return domain.ErrNotFound
	}
	if sl.ContentID != nil || !c.Eligible() {
		return domain.ErrConstraintViolation
	}
	now := time.Now().UTC()
	id := contentID
	sid := slotID
	sl.ContentID = &id
	sl.Reasoning = reasoning
	sl.UpdatedAt = now
	c.ClaimedSlotID = &sid
	c.UpdatedAt = now
	return nil
}

// MarkPosted records the posted instant on the slot and flags the content.
// Either side already posted yields domain.ErrAlreadyPosted.
func (s *Store) MarkPosted(_ context.Context, slotID, contentID uuid.UUID, postedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[slotID]
	if !ok {
		return domain.ErrNotFound
	}
	c, ok := s.content[contentID]
	if !ok {
		return domain.ErrNotFound
	}
	if sl.PostedAt != nil || c.Posted {
		return domain.ErrAlreadyPosted
	}
	if sl.ContentID != nil && *sl.ContentID != contentID {
		return domain.ErrConstraintViolation
	}
	if c.ClaimedSlotID != nil && *c.ClaimedSlotID != slotID {
		return domain.ErrConstraintViolation
	}
	at := postedAt.UTC()
	id := contentID
	sid := slotID
	sl.ContentID = &id
	sl.PostedAt = &at
	sl.UpdatedAt = time.Now().UTC()
	c.Posted = true
	c.PostedAt = &at
	c.ClaimedSlotID = &sid
	c.UpdatedAt = sl.UpdatedAt
	return nil
}

// ListSlotsBetween returns slots with target in [from, to] ordered by target.
func (s *Store) ListSlotsBetween(_ context.Context, from, to time.Time) ([]domain.ScheduledSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduledSlot
	for _, sl := range s.slots {
		if !sl.TargetAt.Before(from) && !sl.TargetAt.After(to) {
			out = append(out, *sl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetAt.Before(out[j].TargetAt) })
	return out, nil
}

// ListScheduleEntries joins a day's filled slots with their content.
func (s *Store) ListScheduleEntries(_ context.Context, day time.Time) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ScheduleEntry
	for _, sl := range s.slots {
		if !sameDay(sl.Day, day) || sl.ContentID == nil {
			continue
		}
		c, ok := s.content[*sl.ContentID]
		if !ok {
			continue
		}
		out = append(out, domain.ScheduleEntry{
			SlotIndex:   sl.SlotIndex,
			ContentID:   c.ID,
			Platform:    c.Platform,
			ContentType: c.ContentType,
			TargetAt:    sl.TargetAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out, nil
}
