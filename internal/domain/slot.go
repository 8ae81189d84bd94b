package domain

import (
	"time"

	"github.com/google/uuid"
)

// SlotsPerDay is the fixed number of posting opportunities in a day.
const SlotsPerDay = 6

// SlotStatus is derived from a slot's inputs on every read and never stored.
type SlotStatus string

const (
	SlotStatusUpcoming SlotStatus = "upcoming"
	SlotStatusPosted   SlotStatus = "posted"
	SlotStatusMissed   SlotStatus = "missed"
)

// ScheduledSlot is one of the six daily posting opportunities.
type ScheduledSlot struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Day       time.Time  `db:"day"        json:"day"`
	SlotIndex int        `db:"slot_index" json:"slot_index"`
	ContentID *uuid.UUID `db:"content_id" json:"content_id,omitempty"`
	TargetAt  time.Time  `db:"target_at"  json:"target_at"`
	PostedAt  *time.Time `db:"posted_at"  json:"posted_at,omitempty"`
	Reasoning string     `db:"reasoning"  json:"reasoning"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Filled reports whether content has been assigned to the slot.
func (s *ScheduledSlot) Filled() bool {
	return s.ContentID != nil
}

// ScheduleEntry is a filled slot joined with the platform and type of its content.
type ScheduleEntry struct {
	SlotIndex   int         `db:"slot_index"   json:"slot_index"`
	ContentID   uuid.UUID   `db:"content_id"   json:"content_id"`
	Platform    Platform    `db:"platform"     json:"platform"`
	ContentType ContentType `db:"content_type" json:"content_type"`
	TargetAt    time.Time   `db:"target_at"    json:"target_at"`
}
