// Package selector picks the next approved content to schedule while
// spreading posts across platforms and content types.
package selector

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// Store reads the approved backlog and posting history.
type Store interface {
	// ListEligible returns approved, unposted, unclaimed items.
	ListEligible(ctx context.Context) ([]domain.ContentItem, error)
	// RecentPosts returns posted items, newest first.
	RecentPosts(ctx context.Context, limit int) ([]domain.RecentPost, error)
}

// Constraints narrow a selection.
type Constraints struct {
	ExcludeIDs []uuid.UUID
	// AvoidPlatforms were used earlier in the same batch, oldest first.
	AvoidPlatforms []domain.Platform
	// StrictPlatforms forbids falling back to an avoided platform.
	StrictPlatforms bool
}

// Pick is a selected item with the score that ranked it.
type Pick struct {
	Item    domain.ContentItem
	Score   Breakdown
	Relaxed bool
}

// Selector picks the next content items for the schedule.
type Selector struct {
	store Store
	cfg   Config
}

// New creates a selector over the eligible content in store.
func New(store Store, cfg Config) *Selector {
	return &Selector{store: store, cfg: cfg}
}

// Config returns the scoring configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

// SelectNext returns up to n items in pick order.
func (s *Selector) SelectNext(ctx context.Context, n int, c Constraints) ([]domain.ContentItem, error) {
	picks, err := s.Select(ctx, n, c)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ContentItem, len(picks))
	for i := range picks {
		items[i] = picks[i].Item
	}
	return items, nil
}

// Select ranks the backlog and picks up to n items without repeating a
// platform within the batch. When only repeat platforms remain and the
// constraints are not strict, the platform used longest ago is allowed again.
func (s *Selector) Select(ctx context.Context, n int, c Constraints) ([]Pick, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", domain.ErrInvalidInput, n)
	}

	eligible, err := s.store.ListEligible(ctx)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	recent, err := s.store.RecentPosts(ctx, s.cfg.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}

	excluded := make(map[uuid.UUID]struct{}, len(c.ExcludeIDs))
	for _, id := range c.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	ranked := make([]Pick, 0, len(eligible))
	for i := range eligible {
		if _, skip := excluded[eligible[i].ID]; skip {
			continue
		}
		ranked = append(ranked, Pick{Item: eligible[i], Score: s.cfg.Score(&eligible[i], recent)})
	}
	if len(ranked) == 0 {
		return nil, domain.ErrNoEligibleContent
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score.Total != b.Score.Total {
			return a.Score.Total > b.Score.Total
		}
		if !a.Item.CreatedAt.Equal(b.Item.CreatedAt) {
			return a.Item.CreatedAt.Before(b.Item.CreatedAt)
		}
		return a.Item.ID.String() < b.Item.ID.String()
	})

	// lastUsed orders platforms by when the batch last used them.
	lastUsed := make(map[domain.Platform]int, len(c.AvoidPlatforms)+n)
	for i, p := range c.AvoidPlatforms {
		lastUsed[p] = i
	}
	seq := len(c.AvoidPlatforms)

	taken := make([]bool, len(ranked))
	picks := make([]Pick, 0, n)
	for len(picks) < n {
		idx, relaxed := pickIndex(ranked, taken, lastUsed, c.StrictPlatforms)
		if idx < 0 {
			break
		}
		taken[idx] = true
		p := ranked[idx]
		p.Relaxed = relaxed
		picks = append(picks, p)
		lastUsed[p.Item.Platform] = seq
		seq++
	}

	if len(picks) == 0 {
		return nil, domain.ErrNoEligibleContent
	}
	return picks, nil
}

// pickIndex returns the best untaken candidate on an unused platform, or
// when relaxing, the best candidate on the least recently used platform.
func pickIndex(ranked []Pick, taken []bool, lastUsed map[domain.Platform]int, strict bool) (int, bool) {
	fallback, fallbackAge := -1, 0
	for i := range ranked {
		if taken[i] {
			continue
		}
		used, ok := lastUsed[ranked[i].Item.Platform]
		if !ok {
			return i, false
		}
		if fallback < 0 || used < fallbackAge {
			fallback, fallbackAge = i, used
		}
	}
	if strict {
		return -1, false
	}
	return fallback, fallback >= 0
}
