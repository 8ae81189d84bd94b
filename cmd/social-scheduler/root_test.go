package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "social-scheduler dev\n", out)
}

func TestMigrate_RejectsDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	require.Error(t, err)
}

func TestMaterialize_MemoryStorage(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")
	missing := filepath.Join(t.TempDir(), "config.yml")

	out, err := execute(t, "--config", missing, "materialize", "2030-03-01")
	require.NoError(t, err)

	var forecast struct {
		Day   string           `json:"day"`
		Slots []map[string]any `json:"slots"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &forecast))
	assert.Equal(t, "2030-03-01", forecast.Day)
	assert.Len(t, forecast.Slots, 6)
}

func TestMaterialize_BadDay(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "error")
	missing := filepath.Join(t.TempDir(), "config.yml")

	_, err := execute(t, "--config", missing, "materialize", "March 1st")
	require.Error(t, err)
}

func TestFlushCache_RequiresRedis(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")
	missing := filepath.Join(t.TempDir(), "config.yml")

	_, err := execute(t, "--config", missing, "flush-cache")
	require.Error(t, err)
}
