package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

func TestLabels(t *testing.T) {
	want := []string{"08:00", "12:00", "15:00", "18:00", "21:00", "23:30"}
	for i, l := range Labels {
		assert.Equal(t, want[i], l.String())
	}
}

func TestTargetInstant_DaylightSaving(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	before := time.Date(2026, 3, 7, 0, 0, 0, 0, loc)
	after := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)

	got, err := TargetInstant(before, 0, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 7, 13, 0, 0, 0, time.UTC), got.UTC())

	got, err = TargetInstant(after, 0, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC), got.UTC())

	got, err = TargetInstant(after, 5, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 3, 30, 0, 0, time.UTC), got.UTC())

	_, err = TargetInstant(after, 6, loc)
	require.ErrorIs(t, err, domain.ErrInvalidSlot)
	_, err = TargetInstant(after, -1, loc)
	require.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	postedAt := past.Add(time.Minute)

	tests := []struct {
		name          string
		target        time.Time
		postedAt      *time.Time
		contentPosted bool
		want          domain.SlotStatus
	}{
		{"future unposted", future, nil, false, domain.SlotStatusUpcoming},
		{"past unposted", past, nil, false, domain.SlotStatusMissed},
		{"target equals now", now, nil, false, domain.SlotStatusMissed},
		{"posted and corroborated", past, &postedAt, true, domain.SlotStatusPosted},
		{"posted early for a future slot", future, &postedAt, true, domain.SlotStatusPosted},
		{"posted instant without flag, past", past, &postedAt, false, domain.SlotStatusMissed},
		{"posted instant without flag, future", future, &postedAt, false, domain.SlotStatusUpcoming},
		{"flag without instant", past, nil, true, domain.SlotStatusMissed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.target, tt.postedAt, tt.contentPosted, now))
		})
	}
}

func TestNeighborOrder(t *testing.T) {
	assert.Equal(t, []int{5, 4, 3, 2, 1}, neighborOrder(0))
	assert.Equal(t, []int{5, 0, 4, 1, 3}, neighborOrder(2))
}
