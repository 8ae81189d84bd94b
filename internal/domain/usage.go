package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlatformUsageRecord is an append-only ledger entry for one upstream call.
type PlatformUsageRecord struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	Platform     Platform  `db:"platform"      json:"platform"      binding:"required"`
	Endpoint     string    `db:"endpoint"      json:"endpoint"`
	CalledAt     time.Time `db:"called_at"     json:"called_at"`
	Success      bool      `db:"success"       json:"success"`
	CostEstimate float64   `db:"cost_estimate" json:"cost_estimate"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
}

// LimitWindow is the period over which a platform quota is counted.
type LimitWindow string

const (
	WindowHourly  LimitWindow = "hourly"
	WindowDaily   LimitWindow = "daily"
	WindowMonthly LimitWindow = "monthly"
)

// ParseLimitWindow validates a window name.
func ParseLimitWindow(s string) (LimitWindow, error) {
	switch w := LimitWindow(s); w {
	case WindowHourly, WindowDaily, WindowMonthly:
		return w, nil
	default:
		return "", fmt.Errorf("%w: unknown limit window %q", ErrInvalidInput, s)
	}
}

// Start returns the calendar-aligned beginning of the window containing t in loc.
func (w LimitWindow) Start(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	switch w {
	case WindowHourly:
		// Truncating the instant keeps the repeated hour at a DST fall-back
		// distinct; zones with sub-hour offsets are not supported.
		return t.Truncate(time.Hour)
	case WindowMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
}

// Reset returns the start of the window following the one containing t.
func (w LimitWindow) Reset(t time.Time, loc *time.Location) time.Time {
	start := w.Start(t, loc)
	switch w {
	case WindowHourly:
		return start.Add(time.Hour)
	case WindowMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}
