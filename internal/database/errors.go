package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
)

const (
	pqUniqueViolation  = "23505"
	pqConnectionClass  = "08"
	pqAdminShutdownErr = "57P01"
)

// mapError wraps err with op and, where the driver error has a domain
// meaning, with the matching sentinel.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if sentinel := classify(err); sentinel != nil {
		return fmt.Errorf("%s: %w: %w", op, sentinel, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func classify(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == pqUniqueViolation:
			return domain.ErrConstraintViolation
		case pqErr.Code.Class() == pqConnectionClass, pqErr.Code == pqAdminShutdownErr:
			return domain.ErrStorageUnavailable
		}
		return nil
	}
	var opErr *net.OpError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &opErr) {
		return domain.ErrStorageUnavailable
	}
	return nil
}
