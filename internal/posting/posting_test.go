package posting_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/memstore"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/posting"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/selector"
)

type fakePoster struct {
	fail map[domain.Platform]bool
	sent []posting.Request
}

func (p *fakePoster) Post(_ context.Context, req posting.Request) (posting.PostResult, error) {
	if p.fail[req.Item.Platform] {
		return posting.PostResult{}, errors.New("upstream 500")
	}
	p.sent = append(p.sent, req)
	return posting.PostResult{PostedAt: time.Date(2026, 9, 3, 12, 2, 0, 0, time.UTC), Receivers: 1}, nil
}

func TestRedisPoster_PublishesToPlatformChannel(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(ctx, "social-scheduler:posts:reddit")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := posting.NewRedisPoster(client, "social-scheduler:posts", time.Second)
	assert.Equal(t, "social-scheduler:posts:reddit", p.Channel(domain.PlatformReddit))

	text := "hello"
	item := &domain.ContentItem{ID: uuid.New(), Platform: domain.PlatformReddit, ContentType: domain.ContentTypeText, Text: &text}
	slotID := uuid.New()
	res, err := p.Post(ctx, posting.Request{Item: item, SlotID: slotID, Day: "2026-09-03", SlotIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Receivers)

	select {
	case m := <-sub.Channel():
		var msg posting.Message
		require.NoError(t, json.Unmarshal([]byte(m.Payload), &msg))
		assert.Equal(t, item.ID, msg.ContentID)
		assert.Equal(t, slotID, msg.SlotID)
		assert.Equal(t, "hello", msg.Text)
		assert.Equal(t, 1, msg.SlotIndex)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func setup(t *testing.T) (*memstore.Store, *schedule.Scheduler, time.Time) {
	t.Helper()
	loc := time.UTC
	store := memstore.New()
	platforms := []domain.Platform{domain.PlatformReddit, domain.PlatformImgur}
	now := time.Date(2026, 9, 3, 6, 0, 0, 0, loc)
	for _, p := range platforms {
		for i := range 3 {
			id := uuid.New()
			require.NoError(t, store.InsertContent(context.Background(), &domain.ContentItem{
				ID: id, Platform: p, ContentType: domain.ContentTypeImage, ContentHash: id.String(),
				Approved: true, Confidence: 0.5 + float64(i)/10, CreatedAt: now.Add(-time.Hour),
			}))
		}
	}
	sel := selector.New(store, selector.Config{
		PlatformPriority: platforms,
		Weights:          selector.Weights{Quality: 0.4, Priority: 0.3, Diversity: 0.2, TypeBalance: 0.1},
		RecentWindow:     5,
	})
	sched := schedule.NewScheduler(store, sel, loc, platforms, logger.NewNop(),
		schedule.WithClock(func() time.Time { return now }))
	_, err := sched.GetOrMaterializeSchedule(context.Background(), now)
	require.NoError(t, err)
	return store, sched, now
}

func TestWorker_PostDue(t *testing.T) {
	ctx := context.Background()
	store, sched, _ := setup(t)
	poster := &fakePoster{}
	w := posting.NewWorker(sched, store, poster, 45*time.Minute, nil, logger.NewNop())

	at := time.Date(2026, 9, 3, 12, 5, 0, 0, time.UTC)
	rep, err := w.PostDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Posted)
	require.Len(t, poster.sent, 1)
	assert.Equal(t, 1, poster.sent[0].SlotIndex)

	item, err := store.GetContent(ctx, poster.sent[0].Item.ID)
	require.NoError(t, err)
	assert.True(t, item.Posted)

	// The slot is no longer due once posted.
	rep, err = w.PostDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Posted+rep.Failed+rep.Skipped)
	assert.Len(t, poster.sent, 1)
}

func TestWorker_FailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	store, sched, _ := setup(t)

	slots, err := store.ListSlots(ctx, time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	first, err := store.GetContent(ctx, *slots[0].ContentID)
	require.NoError(t, err)

	poster := &fakePoster{fail: map[domain.Platform]bool{first.Platform: true}}
	w := posting.NewWorker(sched, store, poster, 5*time.Hour, nil, logger.NewNop())

	rep, err := w.PostDue(ctx, time.Date(2026, 9, 3, 12, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Posted)
	assert.Equal(t, posting.OutcomeFailed, rep.Slots[0].Outcome)
	assert.Contains(t, rep.Slots[0].Error, domain.ErrUpstreamFailure.Error())
}

type postedReader struct {
	*memstore.Store
}

func (r postedReader) GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	item, err := r.Store.GetContent(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Posted = true
	return item, nil
}

func TestWorker_RejectsAlreadyPostedContent(t *testing.T) {
	ctx := context.Background()
	store, sched, _ := setup(t)
	poster := &fakePoster{}
	w := posting.NewWorker(sched, postedReader{store}, poster, 45*time.Minute, nil, logger.NewNop())

	rep, err := w.PostDue(ctx, time.Date(2026, 9, 3, 12, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, posting.OutcomeAlreadyPosted, rep.Slots[0].Outcome)
	assert.Empty(t, poster.sent)
}

type flakyRecorder struct {
	*schedule.Scheduler
	failures int
}

func (r *flakyRecorder) RecordPosted(ctx context.Context, ev schedule.PostedEvent) (schedule.MatchResult, error) {
	if r.failures > 0 {
		r.failures--
		return schedule.MatchResult{}, errors.New("connection reset by peer")
	}
	return r.Scheduler.RecordPosted(ctx, ev)
}

func TestWorker_UnrecordedPostIsRedelivered(t *testing.T) {
	ctx := context.Background()
	store, sched, _ := setup(t)
	poster := &fakePoster{}
	w := posting.NewWorker(&flakyRecorder{Scheduler: sched, failures: 1}, store, poster, 45*time.Minute, nil, logger.NewNop())

	at := time.Date(2026, 9, 3, 12, 5, 0, 0, time.UTC)
	rep, err := w.PostDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, poster.sent, 1)

	rep, err = w.PostDue(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Posted)
	require.Len(t, poster.sent, 2)
	assert.NotEqual(t, uuid.Nil, poster.sent[0].SlotID)
	assert.Equal(t, poster.sent[0].SlotID, poster.sent[1].SlotID)
	assert.Equal(t, poster.sent[0].Item.ID, poster.sent[1].Item.ID)
}
