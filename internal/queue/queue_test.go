package queue_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/dedup"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/memstore"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/queue"
)

// blindStore hides existing rows from the detector so the insert is the
// first place a duplicate is noticed.
type blindStore struct {
	*memstore.Store
}

func (blindStore) FindByHash(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (blindStore) FindByImageURL(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (blindStore) FindByVideoURL(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (blindStore) FindByCanonicalURL(context.Context, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (blindStore) FindByPlatformText(context.Context, domain.Platform, string) (uuid.UUID, bool, error) {
	return uuid.Nil, false, nil
}

func (blindStore) FindByPlatformPrefix(context.Context, domain.Platform, string) ([]dedup.TextRecord, error) {
	return nil, nil
}

func newService(store queue.Store) *queue.Service {
	log := logger.NewNop()
	return queue.NewService(store, dedup.NewDetector(store, nil, log), nil, log)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	svc := newService(memstore.New())

	first, err := svc.Submit(ctx, domain.Candidate{
		Text:        "Sonoran dog",
		ImageURL:    "https://i.example.com/sonoran.jpg?utm_source=x",
		Platform:    domain.PlatformImgur,
		ContentType: domain.ContentTypeImage,
		SourceURL:   "https://imgur.com/gallery/abc/",
		Confidence:  0.8,
	})
	require.NoError(t, err)
	require.True(t, first.Accepted)
	assert.Equal(t, "https://i.example.com/sonoran.jpg", first.Item.ImageURLValue())
	assert.Equal(t, "https://imgur.com/gallery/abc", first.Item.SourceURL)
	assert.Equal(t, "sonoran dog", first.Item.NormalizedText)

	again, err := svc.Submit(ctx, domain.Candidate{
		Text:        "sonoran DOG",
		ImageURL:    "https://i.example.com/sonoran.jpg",
		Platform:    domain.PlatformImgur,
		ContentType: domain.ContentTypeImage,
		SourceURL:   "https://imgur.com/gallery/abc?fbclid=1",
	})
	require.NoError(t, err)
	assert.False(t, again.Accepted)
	assert.True(t, again.Duplicate.IsDuplicate)
	assert.Equal(t, first.Item.ID, again.Duplicate.MatchedID)
	assert.InDelta(t, 1.0, again.Duplicate.Confidence, 1e-9)
}

func TestSubmit_Invalid(t *testing.T) {
	svc := newService(memstore.New())
	_, err := svc.Submit(context.Background(), domain.Candidate{Platform: "myspace", ContentType: domain.ContentTypeText, Text: "x"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Submit(context.Background(), domain.Candidate{Platform: domain.PlatformReddit, ContentType: domain.ContentTypeText})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmit_LostInsertRaceIsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	c := domain.Candidate{Text: "race dog", Platform: domain.PlatformBluesky, ContentType: domain.ContentTypeText}

	first, err := newService(store).Submit(ctx, c)
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := newService(blindStore{Store: store}).Submit(ctx, c)
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.True(t, second.Duplicate.IsDuplicate)
	assert.Equal(t, dedup.ReasonContentHash, second.Duplicate.Reason)
}

func TestApproveAndHealth(t *testing.T) {
	ctx := context.Background()
	svc := newService(memstore.New())

	platforms := []domain.Platform{domain.PlatformReddit, domain.PlatformReddit, domain.PlatformReddit, domain.PlatformYouTube}
	var ids []uuid.UUID
	for i, p := range platforms {
		res, err := svc.Submit(ctx, domain.Candidate{
			Text:        "dog number " + string(rune('a'+i)),
			Platform:    p,
			ContentType: domain.ContentTypeText,
			SourceURL:   "https://example.com/" + string(rune('a'+i)),
		})
		require.NoError(t, err)
		require.True(t, res.Accepted)
		ids = append(ids, res.Item.ID)
	}

	h, err := svc.GetQueueHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, h.ApprovedCount)

	for _, id := range ids {
		require.NoError(t, svc.Approve(ctx, id))
	}
	require.ErrorIs(t, svc.Approve(ctx, uuid.New()), domain.ErrNotFound)

	h, err = svc.GetQueueHealth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, h.ApprovedCount)
	assert.InDelta(t, 4.0/6.0, h.DaysOfContent, 1e-9)
	require.Len(t, h.PlatformBreakdown, 2)
	assert.Equal(t, domain.PlatformReddit, h.PlatformBreakdown[0].Platform)
	assert.InDelta(t, 75.0, h.PlatformBreakdown[0].Percentage, 1e-9)
	assert.InDelta(t, 25.0, h.PlatformBreakdown[1].Percentage, 1e-9)
}
