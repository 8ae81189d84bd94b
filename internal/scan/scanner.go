// Package scan runs the upstream scanning phase of a cycle: each platform is
// checked against the conservation advisor, called once through its circuit
// breaker and rate limiter, and whatever it returns is submitted to the queue.
package scan

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

// Result is what one scan call produced. Errors are per-item problems that
// did not fail the call as a whole.
type Result struct {
	Items  []domain.Candidate
	Errors []error
}

// Scanner fetches content from one upstream platform. Submitting the same
// item twice is harmless; the duplicate detector is the real gate.
type Scanner interface {
	Platform() domain.Platform
	Scan(ctx context.Context, maxItems int, params map[string]string) (Result, error)
}

// Settings tune the calls made to one platform.
type Settings struct {
	BatchSize     int
	Timeout       time.Duration
	RatePerMinute int
	Params        map[string]string
}

// ScannerFunc adapts a function to Scanner.
type ScannerFunc struct {
	Name domain.Platform
	Fn   func(ctx context.Context, maxItems int, params map[string]string) (Result, error)
}

func (f ScannerFunc) Platform() domain.Platform { return f.Name }

func (f ScannerFunc) Scan(ctx context.Context, maxItems int, params map[string]string) (Result, error) {
	return f.Fn(ctx, maxItems, params)
}
