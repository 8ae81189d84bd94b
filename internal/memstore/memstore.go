// Package memstore is an in-memory implementation of the scheduler's storage
// interfaces. It enforces the same uniqueness and claim rules as the
// PostgreSQL repositories and is used for local runs and tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/dedup"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// Store holds content, slots and usage in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	content map[uuid.UUID]*domain.ContentItem
	slots   map[uuid.UUID]*domain.ScheduledSlot
	usage   []domain.PlatformUsageRecord
}

// New returns an empty store.
func New() *Store {
	return &Store{
		content: make(map[uuid.UUID]*domain.ContentItem),
		slots:   make(map[uuid.UUID]*domain.ScheduledSlot),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) findContent(match func(*domain.ContentItem) bool) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.ContentItem
	for _, c := range s.content {
		if match(c) && (found == nil || c.CreatedAt.Before(found.CreatedAt)) {
			found = c
		}
	}
	if found == nil {
		return uuid.Nil, false, nil
	}
	return found.ID, true, nil
}

func (s *Store) FindByHash(_ context.Context, hash string) (uuid.UUID, bool, error) {
	return s.findContent(func(c *domain.ContentItem) bool { return c.ContentHash == hash })
}

func (s *Store) FindByImageURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return s.findContent(func(c *domain.ContentItem) bool { return c.ImageURLValue() == u })
}

func (s *Store) FindByVideoURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return s.findContent(func(c *domain.ContentItem) bool { return c.VideoURLValue() == u })
}

func (s *Store) FindByCanonicalURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return s.findContent(func(c *domain.ContentItem) bool { return c.SourceURL == u })
}

func (s *Store) FindByPlatformText(_ context.Context, p domain.Platform, text string) (uuid.UUID, bool, error) {
	return s.findContent(func(c *domain.ContentItem) bool { return c.Platform == p && c.NormalizedText == text })
}

func (s *Store) FindByPlatformPrefix(_ context.Context, p domain.Platform, prefix string) ([]dedup.TextRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []dedup.TextRecord
	for _, c := range s.content {
		if c.Platform == p && c.TextPrefix == prefix && c.NormalizedText != "" {
			out = append(out, dedup.TextRecord{ID: c.ID, NormalizedText: c.NormalizedText})
		}
	}
	return out, nil
}

func (s *Store) InsertContent(_ context.Context, item *domain.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.content {
		if c.ContentHash == item.ContentHash {
			return domain.ErrConstraintViolation
		}
	}
	cp := *item
	s.content[item.ID] = &cp
	return nil
}

func (s *Store) ApproveContent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.content[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.Approved = true
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CountApprovedUnposted(_ context.Context, now time.Time) ([]domain.PlatformCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[domain.Platform]int{}
	for _, c := range s.content {
		if !c.Approved || c.Posted {
			continue
		}
		if c.ClaimedSlotID != nil {
			if slot, ok := s.slots[*c.ClaimedSlotID]; ok && slot.TargetAt.Before(now) {
				continue
			}
		}
		counts[c.Platform]++
	}
	out := make([]domain.PlatformCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, domain.PlatformCount{Platform: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (s *Store) GetContent(_ context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.content[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListContentByIDs(_ context.Context, ids []uuid.UUID) ([]domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ContentItem, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.content[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

// ListEligible returns approved, unposted, unclaimed items oldest first.
func (s *Store) ListEligible(context.Context) ([]domain.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ContentItem
	for _, c := range s.content {
		if c.Eligible() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// RecentPosts returns the newest posted items first.
func (s *Store) RecentPosts(_ context.Context, limit int) ([]domain.RecentPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RecentPost
	for _, c := range s.content {
		if c.Posted && c.PostedAt != nil {
			out = append(out, domain.RecentPost{
				ContentID:   c.ID,
				Platform:    c.Platform,
				ContentType: c.ContentType,
				PostedAt:    *c.PostedAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.After(out[j].PostedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
