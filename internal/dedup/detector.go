// Package dedup rejects content that is already in the queue.
package dedup

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

// FuzzyThreshold is the word similarity above which texts are duplicates.
const FuzzyThreshold = 0.85

// Match reasons, in decreasing confidence.
const (
	ReasonContentHash  = "content_hash"
	ReasonImageURL     = "image_url"
	ReasonVideoURL     = "video_url"
	ReasonCanonicalURL = "canonical_url"
	ReasonPlatformText = "platform_text"
	ReasonFuzzyText    = "fuzzy_text"
)

const (
	confidenceHash      = 1.0
	confidenceMediaURL  = 0.99
	confidenceCanonical = 0.95
	confidenceText      = 0.90
)

// Index looks up existing content by normalized attributes.
// Exact finders return ok=false when nothing matches.
type Index interface {
	FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error)
	FindByImageURL(ctx context.Context, imageURL string) (uuid.UUID, bool, error)
	FindByVideoURL(ctx context.Context, videoURL string) (uuid.UUID, bool, error)
	FindByCanonicalURL(ctx context.Context, canonicalURL string) (uuid.UUID, bool, error)
	FindByPlatformText(ctx context.Context, platform domain.Platform, normalizedText string) (uuid.UUID, bool, error)
	FindByPlatformPrefix(ctx context.Context, platform domain.Platform, prefix string) ([]TextRecord, error)
}

// TextRecord is an existing item's normalized text, used for fuzzy matching.
type TextRecord struct {
	ID             uuid.UUID `db:"id"`
	NormalizedText string    `db:"normalized_text"`
}

// HashCache is an optional fast path in front of the hash lookup.
type HashCache interface {
	Lookup(ctx context.Context, hash string) (uuid.UUID, bool, error)
	Remember(ctx context.Context, hash string, id uuid.UUID) error
}

// Result is the outcome of a duplicate check.
type Result struct {
	IsDuplicate bool      `json:"is_duplicate"`
	Reason      string    `json:"reason,omitempty"`
	MatchedID   uuid.UUID `json:"matched_id,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
}

// Err converts a duplicate result into a *domain.DuplicateError.
func (r Result) Err() error {
	if !r.IsDuplicate {
		return nil
	}
	return &domain.DuplicateError{MatchedID: r.MatchedID, Reason: r.Reason, Confidence: r.Confidence}
}

// Fingerprint holds the normalized attributes of a candidate.
type Fingerprint struct {
	Platform       domain.Platform
	Hash           string
	NormalizedText string
	Prefix         string
	ImageURL       string
	VideoURL       string
	CanonicalURL   string
}

// FingerprintOf normalizes a candidate.
func FingerprintOf(c domain.Candidate) Fingerprint {
	fp := Fingerprint{
		Platform:       c.Platform,
		NormalizedText: NormalizeText(c.Text),
		ImageURL:       NormalizeURL(c.ImageURL),
		VideoURL:       NormalizeURL(c.VideoURL),
		CanonicalURL:   NormalizeURL(c.SourceURL),
	}
	fp.Prefix = TextPrefix(fp.NormalizedText)
	fp.Hash = ContentHash(fp.NormalizedText, fp.ImageURL, fp.VideoURL, fp.CanonicalURL)
	return fp
}

// Detector runs the duplicate cascade against an Index.
type Detector struct {
	index  Index
	cache  HashCache
	logger logger.Logger
}

// NewDetector creates a detector. cache may be nil.
func NewDetector(index Index, cache HashCache, log logger.Logger) *Detector {
	return &Detector{index: index, cache: cache, logger: log}
}

// Check normalizes the candidate and runs the cascade.
func (d *Detector) Check(ctx context.Context, c domain.Candidate) (Result, error) {
	return d.CheckFingerprint(ctx, FingerprintOf(c))
}

// CheckFingerprint evaluates the cascade in decreasing confidence and stops
// at the first match.
func (d *Detector) CheckFingerprint(ctx context.Context, fp Fingerprint) (Result, error) {
	if res, ok := d.checkHashCache(ctx, fp.Hash); ok {
		return res, nil
	}

	exact := []struct {
		reason     string
		confidence float64
		value      string
		find       func(context.Context) (uuid.UUID, bool, error)
	}{
		{ReasonContentHash, confidenceHash, fp.Hash, func(ctx context.Context) (uuid.UUID, bool, error) {
			return d.index.FindByHash(ctx, fp.Hash)
		}},
		{ReasonImageURL, confidenceMediaURL, fp.ImageURL, func(ctx context.Context) (uuid.UUID, bool, error) {
			return d.index.FindByImageURL(ctx, fp.ImageURL)
		}},
		{ReasonVideoURL, confidenceMediaURL, fp.VideoURL, func(ctx context.Context) (uuid.UUID, bool, error) {
			return d.index.FindByVideoURL(ctx, fp.VideoURL)
		}},
		{ReasonCanonicalURL, confidenceCanonical, fp.CanonicalURL, func(ctx context.Context) (uuid.UUID, bool, error) {
			return d.index.FindByCanonicalURL(ctx, fp.CanonicalURL)
		}},
		{ReasonPlatformText, confidenceText, fp.NormalizedText, func(ctx context.Context) (uuid.UUID, bool, error) {
			return d.index.FindByPlatformText(ctx, fp.Platform, fp.NormalizedText)
		}},
	}

	for _, stage := range exact {
		if stage.value == "" {
			continue
		}
		id, ok, err := stage.find(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("dedup %s: %w", stage.reason, err)
		}
		if ok {
			return Result{IsDuplicate: true, Reason: stage.reason, MatchedID: id, Confidence: stage.confidence}, nil
		}
	}

	if fp.NormalizedText == "" {
		return Result{}, nil
	}
	return d.checkFuzzy(ctx, fp)
}

func (d *Detector) checkFuzzy(ctx context.Context, fp Fingerprint) (Result, error) {
	records, err := d.index.FindByPlatformPrefix(ctx, fp.Platform, fp.Prefix)
	if err != nil {
		return Result{}, fmt.Errorf("dedup %s: %w", ReasonFuzzyText, err)
	}

	best := Result{}
	for _, rec := range records {
		sim := WordSimilarity(fp.NormalizedText, rec.NormalizedText)
		if sim > FuzzyThreshold && sim > best.Confidence {
			best = Result{IsDuplicate: true, Reason: ReasonFuzzyText, MatchedID: rec.ID, Confidence: sim}
		}
	}
	return best, nil
}

// checkHashCache consults the cache; failures fall through to the index.
func (d *Detector) checkHashCache(ctx context.Context, hash string) (Result, bool) {
	if d.cache == nil {
		return Result{}, false
	}
	id, ok, err := d.cache.Lookup(ctx, hash)
	if err != nil {
		d.logger.Warn("Hash cache lookup failed", logger.String("hash", hash), logger.Error(err))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	return Result{IsDuplicate: true, Reason: ReasonContentHash, MatchedID: id, Confidence: confidenceHash}, true
}

// Remember records an accepted item's hash in the cache, if one is configured.
func (d *Detector) Remember(ctx context.Context, hash string, id uuid.UUID) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Remember(ctx, hash, id); err != nil {
		d.logger.Warn("Hash cache write failed", logger.String("hash", hash), logger.Error(err))
	}
}
