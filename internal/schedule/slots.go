package schedule

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// MatchTolerance bounds how far a posted event may be from a slot's target.
const MatchTolerance = 50 * time.Minute

// Label is a civil time of day at which a slot posts.
type Label struct {
	Hour   int
	Minute int
}

func (l Label) String() string {
	return fmt.Sprintf("%02d:%02d", l.Hour, l.Minute)
}

// Labels are the six daily slots in order.
var Labels = [domain.SlotsPerDay]Label{
	{Hour: 8},
	{Hour: 12},
	{Hour: 15},
	{Hour: 18},
	{Hour: 21},
	{Hour: 23, Minute: 30},
}

// ValidIndex reports whether i names a slot.
func ValidIndex(i int) bool {
	return i >= 0 && i < domain.SlotsPerDay
}

// TargetInstant converts a slot label on a calendar day into an absolute
// instant using the zone's rules for that date.
func TargetInstant(day time.Time, index int, loc *time.Location) (time.Time, error) {
	if !ValidIndex(index) {
		return time.Time{}, fmt.Errorf("%w: %d", domain.ErrInvalidSlot, index)
	}
	l := Labels[index]
	y, m, d := day.Date()
	return time.Date(y, m, d, l.Hour, l.Minute, 0, 0, loc), nil
}

// DeriveStatus is the only place slot status is computed. A slot is posted
// when it has a posted instant and its content is flagged posted, upcoming
// while its target is in the future, and missed otherwise.
func DeriveStatus(targetAt time.Time, postedAt *time.Time, contentPosted bool, now time.Time) domain.SlotStatus {
	switch {
	case postedAt != nil && contentPosted:
		return domain.SlotStatusPosted
	case targetAt.After(now):
		return domain.SlotStatusUpcoming
	default:
		return domain.SlotStatusMissed
	}
}
