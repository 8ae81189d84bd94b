package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

type stored struct {
	id uuid.UUID
	fp Fingerprint
}

type fakeIndex struct {
	items []stored
	err   error
}

func (f *fakeIndex) add(c domain.Candidate) uuid.UUID {
	id := uuid.New()
	f.items = append(f.items, stored{id: id, fp: FingerprintOf(c)})
	return id
}

func (f *fakeIndex) find(match func(Fingerprint) bool) (uuid.UUID, bool, error) {
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	for _, s := range f.items {
		if match(s.fp) {
			return s.id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (f *fakeIndex) FindByHash(_ context.Context, h string) (uuid.UUID, bool, error) {
	return f.find(func(fp Fingerprint) bool { return fp.Hash == h })
}

func (f *fakeIndex) FindByImageURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return f.find(func(fp Fingerprint) bool { return fp.ImageURL == u })
}

func (f *fakeIndex) FindByVideoURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return f.find(func(fp Fingerprint) bool { return fp.VideoURL == u })
}

func (f *fakeIndex) FindByCanonicalURL(_ context.Context, u string) (uuid.UUID, bool, error) {
	return f.find(func(fp Fingerprint) bool { return fp.CanonicalURL == u })
}

func (f *fakeIndex) FindByPlatformText(_ context.Context, p domain.Platform, text string) (uuid.UUID, bool, error) {
	return f.find(func(fp Fingerprint) bool { return fp.Platform == p && fp.NormalizedText == text })
}

func (f *fakeIndex) FindByPlatformPrefix(_ context.Context, p domain.Platform, prefix string) ([]TextRecord, error) {
	var out []TextRecord
	for _, s := range f.items {
		if s.fp.Platform == p && s.fp.Prefix == prefix {
			out = append(out, TextRecord{ID: s.id, NormalizedText: s.fp.NormalizedText})
		}
	}
	return out, nil
}

type fakeCache struct {
	ids map[string]uuid.UUID
	err error
}

func (c *fakeCache) Lookup(_ context.Context, h string) (uuid.UUID, bool, error) {
	if c.err != nil {
		return uuid.Nil, false, c.err
	}
	id, ok := c.ids[h]
	return id, ok, nil
}

func (c *fakeCache) Remember(_ context.Context, h string, id uuid.UUID) error {
	if c.err != nil {
		return c.err
	}
	c.ids[h] = id
	return nil
}

func TestDetector_Check(t *testing.T) {
	ctx := context.Background()
	longText := strings.Repeat("the dog ", 8) + "with mustard relish onions pickles tomato peppers celery salt and a poppy seed bun"

	base := domain.Candidate{
		Text:        "Chicago style hot dog",
		ImageURL:    "https://i.example.com/dog.jpg",
		Platform:    domain.PlatformReddit,
		ContentType: domain.ContentTypeImage,
		SourceURL:   "https://reddit.com/r/hotdogs/1",
	}

	testCases := []struct {
		name           string
		existing       []domain.Candidate
		candidate      domain.Candidate
		wantDuplicate  bool
		wantReason     string
		wantConfidence float64
	}{
		{
			name:      "no match",
			existing:  []domain.Candidate{base},
			candidate: domain.Candidate{Text: "something else", Platform: domain.PlatformImgur, SourceURL: "https://imgur.com/x"},
		},
		{
			name:     "identical after normalization matches hash",
			existing: []domain.Candidate{base},
			candidate: domain.Candidate{
				Text:      "chicago STYLE hot dog!",
				ImageURL:  "https://I.EXAMPLE.com/dog.jpg?utm_source=feed",
				Platform:  domain.PlatformReddit,
				SourceURL: "https://reddit.com/r/hotdogs/1/#comments",
			},
			wantDuplicate: true, wantReason: ReasonContentHash, wantConfidence: 1.0,
		},
		{
			name:          "image url",
			existing:      []domain.Candidate{base},
			candidate:     domain.Candidate{Text: "new caption", ImageURL: base.ImageURL, Platform: domain.PlatformImgur},
			wantDuplicate: true, wantReason: ReasonImageURL, wantConfidence: 0.99,
		},
		{
			name:          "video url",
			existing:      []domain.Candidate{{VideoURL: "https://v.example.com/a.mp4", Platform: domain.PlatformYouTube}},
			candidate:     domain.Candidate{Text: "clip", VideoURL: "https://v.example.com/a.mp4#t=3", Platform: domain.PlatformYouTube},
			wantDuplicate: true, wantReason: ReasonVideoURL, wantConfidence: 0.99,
		},
		{
			name:          "canonical url",
			existing:      []domain.Candidate{base},
			candidate:     domain.Candidate{Text: "different", SourceURL: "https://reddit.com/r/hotdogs/1?fbclid=9", Platform: domain.PlatformBluesky},
			wantDuplicate: true, wantReason: ReasonCanonicalURL, wantConfidence: 0.95,
		},
		{
			name:          "same platform text",
			existing:      []domain.Candidate{base},
			candidate:     domain.Candidate{Text: "Chicago style, hot dog.", Platform: domain.PlatformReddit, SourceURL: "https://reddit.com/r/hotdogs/2"},
			wantDuplicate: true, wantReason: ReasonPlatformText, wantConfidence: 0.90,
		},
		{
			name:      "same text other platform is not a duplicate",
			existing:  []domain.Candidate{base},
			candidate: domain.Candidate{Text: "Chicago style hot dog", Platform: domain.PlatformTumblr, SourceURL: "https://tumblr.com/p/2"},
		},
		{
			name:          "fuzzy text above threshold",
			existing:      []domain.Candidate{{Text: longText, Platform: domain.PlatformLemmy, SourceURL: "https://lemmy.world/p/1"}},
			candidate:     domain.Candidate{Text: longText + " yum", Platform: domain.PlatformLemmy, SourceURL: "https://lemmy.world/p/2"},
			wantDuplicate: true, wantReason: ReasonFuzzyText,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			index := &fakeIndex{}
			for _, c := range tc.existing {
				index.add(c)
			}
			d := NewDetector(index, nil, logger.NewNop())

			res, err := d.Check(ctx, tc.candidate)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDuplicate, res.IsDuplicate)
			if !tc.wantDuplicate {
				assert.NoError(t, res.Err())
				return
			}
			assert.Equal(t, tc.wantReason, res.Reason)
			assert.NotEqual(t, uuid.Nil, res.MatchedID)
			if tc.wantConfidence > 0 {
				assert.InDelta(t, tc.wantConfidence, res.Confidence, 1e-9)
			} else {
				assert.Greater(t, res.Confidence, FuzzyThreshold)
			}
			assert.ErrorIs(t, res.Err(), domain.ErrDuplicateContent)
		})
	}
}

func TestDetector_IndexError(t *testing.T) {
	d := NewDetector(&fakeIndex{err: errors.New("db down")}, nil, logger.NewNop())
	_, err := d.Check(context.Background(), domain.Candidate{Text: "x", Platform: domain.PlatformReddit})
	require.Error(t, err)
}

func TestDetector_HashCache(t *testing.T) {
	ctx := context.Background()
	cache := &fakeCache{ids: map[string]uuid.UUID{}}
	d := NewDetector(&fakeIndex{}, cache, logger.NewNop())

	c := domain.Candidate{Text: "cached dog", Platform: domain.PlatformGiphy}
	id := uuid.New()
	d.Remember(ctx, FingerprintOf(c).Hash, id)

	res, err := d.Check(ctx, c)
	require.NoError(t, err)
	assert.True(t, res.IsDuplicate)
	assert.Equal(t, id, res.MatchedID)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)

	cache.err = errors.New("redis down")
	res, err = d.Check(ctx, c)
	require.NoError(t, err)
	assert.False(t, res.IsDuplicate)
}
