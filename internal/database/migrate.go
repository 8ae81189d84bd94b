package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/migrations"
)

// Migration directions.
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// ErrInvalidDirection is returned for anything but up or down.
var ErrInvalidDirection = errors.New("direction must be \"up\" or \"down\"")

// RunMigrations applies or reverts the embedded migrations. It reports
// whether anything changed.
func RunMigrations(cfg config.DatabaseConfig, direction string) (bool, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return false, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return false, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL())
	if err != nil {
		return false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("migrate %s: %w", direction, err)
	}
	return true, nil
}
