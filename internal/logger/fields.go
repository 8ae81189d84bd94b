package logger

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func String(key, val string) Field { return zap.String(key, val) }
func Strings(key string, val []string) Field { return zap.Strings(key, val) }
func Int(key string, val int) Field { return zap.Int(key, val) }
func Int64(key string, val int64) Field { return zap.Int64(key, val) }
func Float64(key string, val float64) Field { return zap.Float64(key, val) }
func Bool(key string, val bool) Field { return zap.Bool(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Time(key string, val time.Time) Field { return zap.Time(key, val) }
func Any(key string, val any) Field { return zap.Any(key, val) }

// Error attaches err under the "error" key.
func Error(err error) Field {
	return zap.Error(err)
}

// Scheduling context fields. Degraded outcomes carry these so a run can be
// reproduced from its logs.

func Platform(p string) Field {
	return zap.String("platform", p)
}

func Day(day time.Time) Field {
	return zap.String("day", day.Format("2006-01-02"))
}

func SlotIndex(i int) Field {
	return zap.Int("slot_index", i)
}

func ContentID(id uuid.UUID) Field {
	return zap.String("content_id", id.String())
}
