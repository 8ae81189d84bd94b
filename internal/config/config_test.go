package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func assertStringEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}

func assertIntEqual(t *testing.T, field string, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	assertStringEqual(t, "service.name", cfg.Service.Name, defaultServiceName)
	assertIntEqual(t, "service.port", cfg.Service.Port, defaultPort)
	assertStringEqual(t, "service.timezone", cfg.Service.Timezone, defaultTimezone)
	assertStringEqual(t, "storage.driver", cfg.Storage.Driver, StorageDriverPostgres)
	assertStringEqual(t, "logging.level", cfg.Logging.Level, "info")
	assertIntEqual(t, "selector.recent_window", cfg.Selector.RecentWindow, defaultRecentWindow)
	assertIntEqual(t, "selector.platform_priority", len(cfg.Selector.PlatformPriority), 5)
	if cfg.Selector.Weights.Quality != 0.4 {
		t.Errorf("selector.weights.quality = %v, want 0.4", cfg.Selector.Weights.Quality)
	}
	if cfg.Scan.Timeout != defaultScanTimeout {
		t.Errorf("scan.timeout = %v, want %v", cfg.Scan.Timeout, defaultScanTimeout)
	}
	if cfg.Posting.DueGrace != defaultDueGrace {
		t.Errorf("posting.due_grace = %v, want %v", cfg.Posting.DueGrace, defaultDueGrace)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	path := writeConfig(t, `
service:
  port: 9000
  timezone: Europe/Berlin
storage:
  driver: memory
platforms:
  reddit:
    enabled: true
    limits:
      hourly: 60
      daily: 1000
  youtube:
    enabled: true
    batch_size: 5
    limits:
      daily: 100
`)
	t.Setenv("SCHEDULER_PORT", "9100")
	t.Setenv("SELECTOR_PLATFORM_PRIORITY", "youtube, reddit")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	assertIntEqual(t, "service.port", cfg.Service.Port, 9100)
	assertStringEqual(t, "service.timezone", cfg.Service.Timezone, "Europe/Berlin")
	assertStringEqual(t, "storage.driver", cfg.Storage.Driver, StorageDriverMemory)
	assertStringEqual(t, "selector.platform_priority[0]", cfg.Selector.PlatformPriority[0], "youtube")
	assertStringEqual(t, "selector.platform_priority[1]", cfg.Selector.PlatformPriority[1], "reddit")
	assertIntEqual(t, "platforms.reddit.batch_size", cfg.Platforms["reddit"].BatchSize, defaultScanBatchSize)
	assertIntEqual(t, "platforms.youtube.batch_size", cfg.Platforms["youtube"].BatchSize, 5)
	assertIntEqual(t, "platforms.reddit.limits.hourly", cfg.Platforms["reddit"].Limits["hourly"], 60)
	if cfg.Platforms["youtube"].Timeout != 30*time.Second {
		t.Errorf("platforms.youtube.timeout = %v, want scan timeout", cfg.Platforms["youtube"].Timeout)
	}

	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location() error = %v", err)
	}
	assertStringEqual(t, "location", loc.String(), "Europe/Berlin")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Service.Port = 70000 }, wantField: "service.port"},
		{name: "bad timezone", mutate: func(c *Config) { c.Service.Timezone = "Mars/Olympus" }, wantField: "service.timezone"},
		{name: "bad driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantField: "storage.driver"},
		{
			name:      "unknown priority platform",
			mutate:    func(c *Config) { c.Selector.PlatformPriority = []string{"myspace"} },
			wantField: "selector.platform_priority",
		},
		{
			name: "unknown window",
			mutate: func(c *Config) {
				c.Platforms["reddit"] = PlatformConfig{Limits: map[string]int{"weekly": 10}}
			},
			wantField: "platforms.reddit.limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			assertStringEqual(t, "field", vErr.Field, tt.wantField)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assertStringEqual(t, "dsn", d.DSN(), "host=db port=5432 user=u password=p dbname=n sslmode=disable")
	assertStringEqual(t, "url", d.URL(), "postgres://u:p@db:5432/n?sslmode=disable")
}
