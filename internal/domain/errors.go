package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateContent is returned when a candidate matches existing content.
	ErrDuplicateContent = errors.New("duplicate content")
	// ErrNoEligibleContent is returned when the approved backlog cannot satisfy a selection.
	ErrNoEligibleContent = errors.New("no eligible content")
	// ErrQuotaExceeded is returned when a scan is denied by the conservation advisor.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrUpstreamTimeout is returned when a scan or post call exceeds its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamFailure is returned when a scan or post call fails.
	ErrUpstreamFailure = errors.New("upstream failure")
	// ErrConstraintViolation is returned when a concurrent writer won a unique-constraint race.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrStorageUnavailable is returned when the store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyPosted = errors.New("already posted")
	ErrInvalidDay    = errors.New("invalid day")
	ErrInvalidSlot   = errors.New("invalid slot index")
	ErrInvalidInput  = errors.New("invalid input")
)

// DuplicateError describes why a candidate was rejected as a duplicate.
type DuplicateError struct {
	MatchedID  uuid.UUID
	Reason     string
	Confidence float64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate content: %s (matched %s, confidence %.2f)", e.Reason, e.MatchedID, e.Confidence)
}

// Is reports ErrDuplicateContent as the sentinel this error belongs to.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateContent
}

// IsFatal reports whether err must abort the current run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
