package memstore

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

func (s *Store) InsertUsage(_ context.Context, rec *domain.PlatformUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, *rec)
	return nil
}

// CountSuccessfulUsage counts successful calls for platform at or after since.
func (s *Store) CountSuccessfulUsage(_ context.Context, platform domain.Platform, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.usage {
		u := &s.usage[i]
		if u.Platform == platform && u.Success && !u.CalledAt.Before(since) {
			n++
		}
	}
	return n, nil
}
