package diversity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/memstore"
)

var universe = []domain.Platform{
	domain.PlatformReddit, domain.PlatformYouTube, domain.PlatformImgur, domain.PlatformBluesky, domain.PlatformTumblr,
}

// fillDay writes six assigned slots for day.
func fillDay(t *testing.T, store *memstore.Store, day time.Time, platforms []domain.Platform, types []domain.ContentType) {
	t.Helper()
	ctx := context.Background()
	slots := make([]domain.ScheduledSlot, len(platforms))
	for i := range platforms {
		slots[i] = domain.ScheduledSlot{ID: uuid.New(), Day: day, SlotIndex: i, TargetAt: day.Add(time.Duration(8+i) * time.Hour)}
	}
	require.NoError(t, store.CreateSlots(ctx, slots))
	for i := range platforms {
		id := uuid.New()
		require.NoError(t, store.InsertContent(ctx, &domain.ContentItem{
			ID: id, Platform: platforms[i], ContentType: types[i], ContentHash: id.String(), Approved: true,
		}))
		require.NoError(t, store.ClaimAndAssign(ctx, slots[i].ID, id, "test"))
	}
}

type mapCache struct {
	data map[string]diversity.Snapshot
	sets int
}

func (m *mapCache) GetSnapshot(_ context.Context, day time.Time) (*diversity.Snapshot, bool, error) {
	s, ok := m.data[domain.DayKey(day)]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (m *mapCache) SetSnapshot(_ context.Context, day time.Time, snap *diversity.Snapshot) error {
	m.data[domain.DayKey(day)] = *snap
	m.sets++
	return nil
}

func TestGetDiversityMetrics_ScoreDropAndTrailing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	today := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)

	rotating := []domain.Platform{
		domain.PlatformReddit, domain.PlatformYouTube, domain.PlatformImgur,
		domain.PlatformBluesky, domain.PlatformTumblr, domain.PlatformYouTube,
	}
	alternating := []domain.ContentType{
		domain.ContentTypeImage, domain.ContentTypeVideo, domain.ContentTypeImage,
		domain.ContentTypeVideo, domain.ContentTypeImage, domain.ContentTypeVideo,
	}
	sameP := make([]domain.Platform, 6)
	sameT := make([]domain.ContentType, 6)
	for i := range sameP {
		sameP[i] = domain.PlatformReddit
		sameT[i] = domain.ContentTypeImage
	}

	fillDay(t, store, today.AddDate(0, 0, -1), rotating, alternating)
	fillDay(t, store, today.AddDate(0, 0, -3), rotating, alternating)
	fillDay(t, store, today, sameP, sameT)

	cache := &mapCache{data: map[string]diversity.Snapshot{}}
	svc := diversity.NewService(store, cache, universe, nil, logger.NewNop())

	report, err := svc.GetDiversityMetrics(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-10", report.Day)
	assert.Equal(t, 19, report.Snapshot.Score)

	require.NotNil(t, report.PreviousDay)
	assert.InDelta(t, 99, report.PreviousDay.Score, 1e-9)
	assert.InDelta(t, -80, report.PreviousDay.Delta, 1e-9)

	require.NotNil(t, report.Trailing)
	assert.Equal(t, 2, report.Trailing.Days)
	assert.InDelta(t, 99, report.Trailing.Score, 1e-9)

	var drop *diversity.Alert
	for i := range report.Alerts {
		if report.Alerts[i].Type == diversity.AlertScoreDrop {
			drop = &report.Alerts[i]
		}
	}
	require.NotNil(t, drop)
	assert.Equal(t, diversity.SeverityCritical, drop.Severity)

	// Eight days computed once each, then served from cache.
	assert.Equal(t, 8, cache.sets)
	_, err = svc.GetDiversityMetrics(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 8, cache.sets)
}

func TestGetDiversityMetrics_NoHistory(t *testing.T) {
	svc := diversity.NewService(memstore.New(), nil, universe, nil, logger.NewNop())
	report, err := svc.GetDiversityMetrics(context.Background(), time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, report.PreviousDay)
	assert.Nil(t, report.Trailing)
	assert.Empty(t, report.Alerts)
}
