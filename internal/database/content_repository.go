package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/dedup"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

const contentColumns = `id, text_body, image_url, video_url, platform, content_type, source_url,
	author, content_hash, normalized_text, text_prefix, approved, posted, confidence,
	claimed_slot_id, posted_at, created_at, updated_at`

// ContentRepository stores content items and answers duplicate lookups.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository creates a new content repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// findID returns the oldest matching id, or false when nothing matches.
func (r *ContentRepository) findID(ctx context.Context, op, query string, args ...any) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := r.db.GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, mapError(op, err)
	}
	return id, true, nil
}

func (r *ContentRepository) FindByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	return r.findID(ctx, "find by hash",
		`SELECT id FROM content_items WHERE content_hash = $1 LIMIT 1`, hash)
}

func (r *ContentRepository) FindByImageURL(ctx context.Context, u string) (uuid.UUID, bool, error) {
	return r.findID(ctx, "find by image url",
		`SELECT id FROM content_items WHERE image_url = $1 ORDER BY created_at LIMIT 1`, u)
}

func (r *ContentRepository) FindByVideoURL(ctx context.Context, u string) (uuid.UUID, bool, error) {
	return r.findID(ctx, "find by video url",
		`SELECT id FROM content_items WHERE video_url = $1 ORDER BY created_at LIMIT 1`, u)
}

func (r *ContentRepository) FindByCanonicalURL(ctx context.Context, u string) (uuid.UUID, bool, error) {
	return r.findID(ctx, "find by canonical url",
		`SELECT id FROM content_items WHERE source_url = $1 ORDER BY created_at LIMIT 1`, u)
}

func (r *ContentRepository) FindByPlatformText(ctx context.Context, p domain.Platform, text string) (uuid.UUID, bool, error) {
	return r.findID(ctx, "find by platform text",
		`SELECT id FROM content_items WHERE platform = $1 AND normalized_text = $2 ORDER BY created_at LIMIT 1`,
		p, text)
}

// FindByPlatformPrefix returns the fuzzy-match candidates for a text prefix.
func (r *ContentRepository) FindByPlatformPrefix(ctx context.Context, p domain.Platform, prefix string) ([]dedup.TextRecord, error) {
	records := []dedup.TextRecord{}
	query := `
		SELECT id, normalized_text
		FROM content_items
		WHERE platform = $1 AND text_prefix = $2 AND normalized_text <> ''
		ORDER BY created_at
	`
	if err := r.db.SelectContext(ctx, &records, query, p, prefix); err != nil {
		return nil, mapError("find by platform prefix", err)
	}
	return records, nil
}

// InsertContent stores a new item. A content hash that already exists
// yields domain.ErrConstraintViolation.
func (r *ContentRepository) InsertContent(ctx context.Context, item *domain.ContentItem) error {
	query := `
		INSERT INTO content_items (` + contentColumns + `)
		VALUES (:id, :text_body, :image_url, :video_url, :platform, :content_type, :source_url,
			:author, :content_hash, :normalized_text, :text_prefix, :approved, :posted, :confidence,
			:claimed_slot_id, :posted_at, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return mapError("insert content", err)
	}
	return nil
}

func (r *ContentRepository) ApproveContent(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE content_items SET approved = true, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return mapError("approve content", err)
	}
	return expectRows(res, "approve content")
}

// CountApprovedUnposted counts the backlog per platform. Content held by a
// slot whose target is before now will not be posted and is left out.
func (r *ContentRepository) CountApprovedUnposted(ctx context.Context, now time.Time) ([]domain.PlatformCount, error) {
	counts := []domain.PlatformCount{}
	query := `
		SELECT c.platform, COUNT(*) AS count
		FROM content_items c
		LEFT JOIN scheduled_slots s ON s.id = c.claimed_slot_id
		WHERE c.approved = true AND c.posted = false
		  AND (c.claimed_slot_id IS NULL OR s.target_at >= $1)
		GROUP BY c.platform
		ORDER BY c.platform
	`
	if err := r.db.SelectContext(ctx, &counts, query, now); err != nil {
		return nil, mapError("count approved", err)
	}
	return counts, nil
}

func (r *ContentRepository) GetContent(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	item := &domain.ContentItem{}
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = $1`
	if err := r.db.GetContext(ctx, item, query, id); err != nil {
		return nil, mapError("get content", err)
	}
	return item, nil
}

func (r *ContentRepository) ListContentByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.ContentItem, error) {
	items := []domain.ContentItem{}
	if len(ids) == 0 {
		return items, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	query := `SELECT ` + contentColumns + ` FROM content_items WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &items, query, pq.StringArray(strs)); err != nil {
		return nil, mapError("list content by ids", err)
	}
	return items, nil
}

// ListEligible returns approved, unposted, unclaimed items oldest first.
func (r *ContentRepository) ListEligible(ctx context.Context) ([]domain.ContentItem, error) {
	items := []domain.ContentItem{}
	query := `
		SELECT ` + contentColumns + `
		FROM content_items
		WHERE approved = true AND posted = false AND claimed_slot_id IS NULL
		ORDER BY created_at, id
	`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, mapError("list eligible", err)
	}
	return items, nil
}

// RecentPosts returns the newest posted items first.
func (r *ContentRepository) RecentPosts(ctx context.Context, limit int) ([]domain.RecentPost, error) {
	posts := []domain.RecentPost{}
	query := `
		SELECT id, platform, content_type, posted_at
		FROM content_items
		WHERE posted = true AND posted_at IS NOT NULL
		ORDER BY posted_at DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &posts, query, limit); err != nil {
		return nil, mapError("recent posts", err)
	}
	return posts, nil
}

func expectRows(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
