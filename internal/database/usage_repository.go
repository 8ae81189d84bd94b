package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// UsageRepository is the append-only platform call ledger.
type UsageRepository struct {
	db *sqlx.DB
}

// NewUsageRepository creates a new platform usage repository.
func NewUsageRepository(db *sqlx.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) InsertUsage(ctx context.Context, rec *domain.PlatformUsageRecord) error {
	query := `
		INSERT INTO platform_usage (id, platform, endpoint, called_at, success, cost_estimate, error_message)
		VALUES (:id, :platform, :endpoint, :called_at, :success, :cost_estimate, :error_message)
	`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return mapError("insert usage", err)
	}
	return nil
}

// CountSuccessfulUsage counts successful calls for platform at or after since.
func (r *UsageRepository) CountSuccessfulUsage(ctx context.Context, platform domain.Platform, since time.Time) (int, error) {
	var n int
	query := `
		SELECT COUNT(*)
		FROM platform_usage
		WHERE platform = $1 AND success = true AND called_at >= $2
	`
	if err := r.db.GetContext(ctx, &n, query, platform, since.UTC()); err != nil {
		return 0, mapError("count usage", err)
	}
	return n, nil
}
