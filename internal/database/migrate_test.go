package database_test

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/database"
	"github.com/jonesrussell/north-cloud/social-scheduler/migrations"
)

func TestRunMigrations_RejectsUnknownDirection(t *testing.T) {
	_, err := database.RunMigrations(config.DatabaseConfig{}, "sideways")
	require.ErrorIs(t, err, database.ErrInvalidDirection)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrations.FS, ".")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrations.FS, "000001_create_scheduler_tables.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "UNIQUE (content_hash)")
	assert.Contains(t, string(schema), "UNIQUE (day, slot_index)")
}
