package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/memstore"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/selector"
)

var platforms = []domain.Platform{
	domain.PlatformReddit, domain.PlatformYouTube, domain.PlatformImgur, domain.PlatformBluesky, domain.PlatformTumblr,
}

type fixture struct {
	store *memstore.Store
	sched *schedule.Scheduler
	loc   *time.Location
	day   time.Time
	now   time.Time
}

func newFixture(t *testing.T, hour int) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	f := &fixture{
		store: memstore.New(),
		loc:   loc,
		day:   time.Date(2026, 8, 14, 0, 0, 0, 0, loc),
	}
	f.now = time.Date(2026, 8, 14, hour, 0, 0, 0, loc)
	sel := selector.New(f.store, selector.Config{
		PlatformPriority: platforms,
		Weights:          selector.Weights{Quality: 0.4, Priority: 0.3, Diversity: 0.2, TypeBalance: 0.1},
		RecentWindow:     5,
	})
	f.sched = schedule.NewScheduler(f.store, sel, loc, platforms, logger.NewNop(),
		schedule.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) seed(t *testing.T, p domain.Platform, ct domain.ContentType, confidence float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.InsertContent(context.Background(), &domain.ContentItem{
		ID:          id,
		Platform:    p,
		ContentType: ct,
		ContentHash: id.String(),
		Approved:    true,
		Confidence:  confidence,
		Author:      "u/" + string(p),
		CreatedAt:   f.day.Add(-24 * time.Hour),
	}))
	return id
}

func (f *fixture) seedBacklog(t *testing.T, perPlatform int) {
	t.Helper()
	types := []domain.ContentType{domain.ContentTypeImage, domain.ContentTypeVideo}
	for i, p := range platforms[:3] {
		for j := range perPlatform {
			f.seed(t, p, types[(i+j)%2], 0.9-float64(j)*0.1)
		}
	}
}

func assignments(s schedule.Schedule) []string {
	out := make([]string, len(s.Slots))
	for i, sl := range s.Slots {
		if sl.Content != nil {
			out[i] = sl.Content.ID.String()
		}
	}
	return out
}

func TestGetOrMaterializeSchedule_FillsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.seedBacklog(t, 3)

	first, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)
	require.Len(t, first.Slots, domain.SlotsPerDay)
	assert.Equal(t, "2026-08-14", first.Day)
	assert.Equal(t, "America/Toronto", first.Timezone)

	seen := map[uuid.UUID]bool{}
	for i, sl := range first.Slots {
		require.NotNil(t, sl.Content, "slot %d empty", i)
		assert.False(t, seen[sl.Content.ID], "content reused")
		seen[sl.Content.ID] = true
		assert.Equal(t, domain.SlotStatusUpcoming, sl.Status)
		assert.Equal(t, schedule.Labels[i].String(), sl.Label)
		assert.NotEmpty(t, sl.Reasoning)
		if i > 0 {
			assert.NotEqual(t, first.Slots[i-1].Content.Platform, sl.Content.Platform, "slot %d repeats platform", i)
		}
	}
	assert.Equal(t, 8, first.Slots[0].TargetAt.Hour())
	assert.Equal(t, 6, first.Diversity.FilledSlots)
	assert.Len(t, first.Diversity.PlatformDistribution, 3)

	second, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)
	assert.Equal(t, assignments(first), assignments(second))
}

func TestGetOrMaterializeSchedule_FirstPicksSpanPlatforms(t *testing.T) {
	f := newFixture(t, 6)
	f.seedBacklog(t, 2)

	s, err := f.sched.GetOrMaterializeSchedule(context.Background(), f.day)
	require.NoError(t, err)
	got := map[domain.Platform]bool{}
	for _, sl := range s.Slots[:3] {
		got[sl.Content.Platform] = true
	}
	assert.Len(t, got, 3)
}

func TestGetOrMaterializeSchedule_PastSlotsStayEmptyAndMissed(t *testing.T) {
	f := newFixture(t, 13)
	f.seedBacklog(t, 3)

	s, err := f.sched.GetOrMaterializeSchedule(context.Background(), f.day)
	require.NoError(t, err)
	for i, sl := range s.Slots {
		if i < 2 {
			assert.Nil(t, sl.Content)
			assert.Equal(t, domain.SlotStatusMissed, sl.Status)
			continue
		}
		assert.NotNil(t, sl.Content)
		assert.Equal(t, domain.SlotStatusUpcoming, sl.Status)
	}
}

func TestGetOrMaterializeSchedule_EmptyBacklog(t *testing.T) {
	f := newFixture(t, 6)
	s, err := f.sched.GetOrMaterializeSchedule(context.Background(), f.day)
	require.NoError(t, err)
	require.Len(t, s.Slots, domain.SlotsPerDay)
	for _, sl := range s.Slots {
		assert.Nil(t, sl.Content)
	}
	assert.Equal(t, 0, s.Diversity.Score)

	// Content arriving later fills the still-empty future slots only.
	f.seed(t, domain.PlatformReddit, domain.ContentTypeImage, 0.5)
	f.now = time.Date(2026, 8, 14, 16, 0, 0, 0, f.loc)
	s, err = f.sched.GetOrMaterializeSchedule(context.Background(), f.day)
	require.NoError(t, err)
	assert.Nil(t, s.Slots[2].Content)
	assert.NotNil(t, s.Slots[3].Content)
}

func TestGetOrMaterializeSchedule_ConcurrentCallers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.seedBacklog(t, 4)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.sched.GetOrMaterializeSchedule(ctx, f.day)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	// A follow-up read settles any slot every racer lost.
	_, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)

	slots, err := f.store.ListSlots(ctx, f.day)
	require.NoError(t, err)
	require.Len(t, slots, domain.SlotsPerDay)
	seen := map[uuid.UUID]bool{}
	for _, sl := range slots {
		require.NotNil(t, sl.ContentID)
		assert.False(t, seen[*sl.ContentID])
		seen[*sl.ContentID] = true
	}
}

func TestSelectAndAssignNext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)

	res, err := f.sched.SelectAndAssignNext(ctx, f.day, 3)
	require.NoError(t, err)
	assert.False(t, res.Assigned)
	assert.Equal(t, schedule.OutcomeNoContent, res.Outcome)

	reddit := f.seed(t, domain.PlatformReddit, domain.ContentTypeImage, 0.9)
	res, err = f.sched.SelectAndAssignNext(ctx, f.day, 3)
	require.NoError(t, err)
	assert.True(t, res.Assigned)
	assert.Equal(t, schedule.OutcomeAssigned, res.Outcome)
	require.NotNil(t, res.Slot.Content)
	assert.Equal(t, reddit, res.Slot.Content.ID)

	res, err = f.sched.SelectAndAssignNext(ctx, f.day, 3)
	require.NoError(t, err)
	assert.False(t, res.Assigned)
	assert.Equal(t, schedule.OutcomeAlreadyFilled, res.Outcome)
	assert.Equal(t, reddit, res.Slot.Content.ID)

	f.seed(t, domain.PlatformReddit, domain.ContentTypeImage, 0.99)
	youtube := f.seed(t, domain.PlatformYouTube, domain.ContentTypeImage, 0.1)
	res, err = f.sched.SelectAndAssignNext(ctx, f.day, 4)
	require.NoError(t, err)
	require.True(t, res.Assigned)
	assert.Equal(t, youtube, res.Slot.Content.ID, "adjacent platform avoided")

	_, err = f.sched.SelectAndAssignNext(ctx, f.day, 6)
	require.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestRecordPosted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.seedBacklog(t, 2)

	s, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)
	slot1 := s.Slots[1]
	require.NotNil(t, slot1.Content)

	// 12:20 local is 20 minutes after slot 1's target.
	postedAt := time.Date(2026, 8, 14, 12, 20, 0, 0, f.loc)
	res, err := f.sched.RecordPosted(ctx, schedule.PostedEvent{ContentID: slot1.Content.ID, PostedAt: postedAt})
	require.NoError(t, err)
	assert.True(t, res.Attached)
	assert.Equal(t, schedule.MatchNearestTarget, res.Method)
	assert.Equal(t, 1, res.SlotIndex)
	assert.Equal(t, 20*time.Minute, res.Offset)

	f.now = time.Date(2026, 8, 14, 13, 0, 0, 0, f.loc)
	s, err = f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotStatusPosted, s.Slots[1].Status)
	assert.Equal(t, domain.SlotStatusMissed, s.Slots[0].Status)
	assert.Equal(t, domain.SlotStatusUpcoming, s.Slots[2].Status)

	_, err = f.sched.RecordPosted(ctx, schedule.PostedEvent{ContentID: slot1.Content.ID, PostedAt: postedAt})
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)
}

func TestRecordPosted_OutsideTolerance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.seedBacklog(t, 2)
	_, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)

	extra := f.seed(t, domain.PlatformBluesky, domain.ContentTypeText, 0.4)
	res, err := f.sched.RecordPosted(ctx, schedule.PostedEvent{
		ContentID: extra,
		PostedAt:  time.Date(2026, 8, 14, 10, 0, 0, 0, f.loc),
	})
	require.NoError(t, err)
	assert.False(t, res.Attached)

	item, err := f.store.GetContent(ctx, extra)
	require.NoError(t, err)
	assert.False(t, item.Posted)
}

func TestRecordPosted_ExactSlotIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	_, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)

	id := f.seed(t, domain.PlatformTumblr, domain.ContentTypeGIF, 0.7)
	idx := 4
	res, err := f.sched.RecordPosted(ctx, schedule.PostedEvent{
		ContentID: id,
		PostedAt:  time.Date(2026, 8, 14, 9, 0, 0, 0, f.loc),
		Day:       "2026-08-14",
		SlotIndex: &idx,
	})
	require.NoError(t, err)
	assert.True(t, res.Attached)
	assert.Equal(t, schedule.MatchSlotIndex, res.Method)
	assert.Equal(t, 4, res.SlotIndex)

	other := f.seed(t, domain.PlatformReddit, domain.ContentTypeGIF, 0.7)
	_, err = f.sched.RecordPosted(ctx, schedule.PostedEvent{
		ContentID: other, PostedAt: time.Date(2026, 8, 14, 9, 5, 0, 0, f.loc), Day: "2026-08-14", SlotIndex: &idx,
	})
	require.ErrorIs(t, err, domain.ErrAlreadyPosted)
}

func TestDueSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 6)
	f.seedBacklog(t, 2)
	_, err := f.sched.GetOrMaterializeSchedule(ctx, f.day)
	require.NoError(t, err)

	now := time.Date(2026, 8, 14, 15, 10, 0, 0, f.loc)
	due, err := f.sched.DueSlots(ctx, now, 45*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].SlotIndex)

	due, err = f.sched.DueSlots(ctx, now, 8*time.Hour)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, 0, due[0].SlotIndex)
}
