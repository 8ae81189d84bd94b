package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

const slotColumns = `id, day, slot_index, content_id, target_at, posted_at, reasoning, created_at, updated_at`

// SlotRepository stores the daily slots. Claim and post writes run in
// transactions that touch both the slot and its content.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository creates a new slot repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) ListSlots(ctx context.Context, day time.Time) ([]domain.ScheduledSlot, error) {
	slots := []domain.ScheduledSlot{}
	query := `SELECT ` + slotColumns + ` FROM scheduled_slots WHERE day = $1::date ORDER BY slot_index`
	if err := r.db.SelectContext(ctx, &slots, query, domain.DayKey(day)); err != nil {
		return nil, mapError("list slots", err)
	}
	return slots, nil
}

// CreateSlots inserts slots, leaving any (day, slot_index) that already
// exists untouched.
func (r *SlotRepository) CreateSlots(ctx context.Context, slots []domain.ScheduledSlot) error {
	query := `
		INSERT INTO scheduled_slots (id, day, slot_index, target_at, reasoning, created_at, updated_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (day, slot_index) DO NOTHING
	`
	return withTx(ctx, r.db, "create slots", func(tx *sqlx.Tx) error {
		for i := range slots {
			s := &slots[i]
			if _, err := tx.ExecContext(ctx, query,
				s.ID, domain.DayKey(s.Day), s.SlotIndex, s.TargetAt, s.Reasoning, s.CreatedAt, s.UpdatedAt,
			); err != nil {
				return mapError("create slots", err)
			}
		}
		return nil
	})
}

// ClaimAndAssign marks content claimed and writes it into an empty slot in
// one transaction. Content that is no longer eligible or a slot that was
// filled first yields domain.ErrConstraintViolation.
func (r *SlotRepository) ClaimAndAssign(ctx context.Context, slotID, contentID uuid.UUID, reasoning string) error {
	now := time.Now().UTC()
	return withTx(ctx, r.db, "claim and assign", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE content_items
			SET claimed_slot_id = $1, updated_at = $2
			WHERE id = $3 AND approved = true AND posted = false AND claimed_slot_id IS NULL
		`, slotID, now, contentID)
		if err != nil {
			return mapError("claim content", err)
		}
		if n, rowsErr := res.RowsAffected(); rowsErr != nil || n == 0 {
			return domain.ErrConstraintViolation
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE scheduled_slots
			SET content_id = $1, reasoning = $2, updated_at = $3
			WHERE id = $4 AND content_id IS NULL
		`, contentID, reasoning, now, slotID)
		if err != nil {
			return mapError("assign slot", err)
		}
		if n, rowsErr := res.RowsAffected(); rowsErr != nil || n == 0 {
			return domain.ErrConstraintViolation
		}
		return nil
	})
}

type slotLock struct {
	ContentID *uuid.UUID `db:"content_id"`
	PostedAt  *time.Time `db:"posted_at"`
}

type contentLock struct {
	Posted        bool       `db:"posted"`
	ClaimedSlotID *uuid.UUID `db:"claimed_slot_id"`
}

// MarkPosted records the posted instant on the slot and flags the content
// posted in one transaction. Either side already posted yields
// domain.ErrAlreadyPosted; content belonging to another slot yields
// domain.ErrConstraintViolation.
func (r *SlotRepository) MarkPosted(ctx context.Context, slotID, contentID uuid.UUID, postedAt time.Time) error {
	now := time.Now().UTC()
	at := postedAt.UTC()
	return withTx(ctx, r.db, "mark posted", func(tx *sqlx.Tx) error {
		var sl slotLock
		if err := tx.GetContext(ctx, &sl,
			`SELECT content_id, posted_at FROM scheduled_slots WHERE id = $1 FOR UPDATE`, slotID); err != nil {
			return mapError("lock slot", err)
		}
		var cl contentLock
		if err := tx.GetContext(ctx, &cl,
			`SELECT posted, claimed_slot_id FROM content_items WHERE id = $1 FOR UPDATE`, contentID); err != nil {
			return mapError("lock content", err)
		}

		switch {
		case sl.PostedAt != nil || cl.Posted:
			return domain.ErrAlreadyPosted
		case sl.ContentID != nil && *sl.ContentID != contentID:
			return domain.ErrConstraintViolation
		case cl.ClaimedSlotID != nil && *cl.ClaimedSlotID != slotID:
			return domain.ErrConstraintViolation
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE content_items
			SET posted = true, posted_at = $1, claimed_slot_id = $2, updated_at = $3
			WHERE id = $4
		`, at, slotID, now, contentID); err != nil {
			return mapError("mark content posted", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE scheduled_slots
			SET content_id = $1, posted_at = $2, updated_at = $3
			WHERE id = $4
		`, contentID, at, now, slotID); err != nil {
			return mapError("mark slot posted", err)
		}
		return nil
	})
}

// ListSlotsBetween returns slots whose target lies in [from, to].
func (r *SlotRepository) ListSlotsBetween(ctx context.Context, from, to time.Time) ([]domain.ScheduledSlot, error) {
	slots := []domain.ScheduledSlot{}
	query := `
		SELECT ` + slotColumns + `
		FROM scheduled_slots
		WHERE target_at BETWEEN $1 AND $2
		ORDER BY target_at
	`
	if err := r.db.SelectContext(ctx, &slots, query, from.UTC(), to.UTC()); err != nil {
		return nil, mapError("list slots between", err)
	}
	return slots, nil
}

// ListScheduleEntries joins a day's filled slots with their content.
func (r *SlotRepository) ListScheduleEntries(ctx context.Context, day time.Time) ([]domain.ScheduleEntry, error) {
	entries := []domain.ScheduleEntry{}
	query := `
		SELECT s.slot_index, s.content_id, c.platform, c.content_type, s.target_at
		FROM scheduled_slots s
		JOIN content_items c ON c.id = s.content_id
		WHERE s.day = $1::date
		ORDER BY s.slot_index
	`
	if err := r.db.SelectContext(ctx, &entries, query, domain.DayKey(day)); err != nil {
		return nil, mapError("list schedule entries", err)
	}
	return entries, nil
}
