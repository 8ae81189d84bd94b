// Package config loads the scheduler configuration from YAML, .env files and
// environment variables.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // zoneinfo for hosts without a system database

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

const (
	defaultServiceName     = "social-scheduler"
	defaultPort            = 8095
	defaultTimezone        = "America/Toronto"
	defaultCronSpec        = "*/15 * * * *"
	defaultDBHost          = "localhost"
	defaultDBPort          = "5432"
	defaultDBUser          = "postgres"
	defaultDBName          = "social_scheduler"
	defaultDBSSLMode       = "disable"
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultRedisAddr       = "localhost:6379"
	defaultDedupTTL        = 30 * 24 * time.Hour
	defaultDiversityTTL    = 6 * time.Hour
	defaultRecentWindow    = 5
	defaultScanTimeout     = 30 * time.Second
	defaultScanBatchSize   = 25
	defaultRatePerMinute   = 30
	defaultChannelPrefix   = "social-scheduler:posts"
	defaultPostTimeout     = 10 * time.Second
	defaultDueGrace        = 45 * time.Minute
	minPort                = 1
	maxPort                = 65535

	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config is the root configuration.
type Config struct {
	Service   ServiceConfig             `yaml:"service"`
	Storage   StorageConfig             `yaml:"storage"`
	Database  DatabaseConfig            `yaml:"database"`
	Redis     RedisConfig               `yaml:"redis"`
	Logging   logger.Config             `yaml:"logging"`
	Selector  SelectorConfig            `yaml:"selector"`
	Scan      ScanConfig                `yaml:"scan"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
	Posting   PostingConfig             `yaml:"posting"`
}

type ServiceConfig struct {
	Name     string `env:"SERVICE_NAME"     yaml:"name"`
	Port     int    `env:"SCHEDULER_PORT"   yaml:"port"`
	Debug    bool   `env:"APP_DEBUG"        yaml:"debug"`
	Timezone string `env:"SCHEDULER_TZ"     yaml:"timezone"`
	CronSpec string `env:"SCHEDULER_CRON"   yaml:"cron_spec"`
	Version  string `env:"SERVICE_VERSION"  yaml:"version"`
}

type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER" yaml:"driver"`
}

type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            string        `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"` //nolint:gosec // connection config
	DBName          string        `env:"POSTGRES_DB"       yaml:"dbname"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN renders a lib/pq keyword connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// URL renders a postgres:// URL for golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled      bool          `env:"REDIS_ENABLED"  yaml:"enabled"`
	Address      string        `env:"REDIS_ADDR"     yaml:"address"`
	Password     string        `env:"REDIS_PASSWORD" yaml:"password"` //nolint:gosec // connection config
	DB           int           `env:"REDIS_DB"       yaml:"db"`
	DedupTTL     time.Duration `yaml:"dedup_ttl"`
	DiversityTTL time.Duration `yaml:"diversity_ttl"`
}

// SelectorConfig feeds the content selector. Nothing here is package state.
type SelectorConfig struct {
	PlatformPriority []string           `env:"SELECTOR_PLATFORM_PRIORITY" yaml:"platform_priority"`
	TypeWeights      map[string]float64 `yaml:"type_weights"`
	Weights          ScoreWeights       `yaml:"weights"`
	RecentWindow     int                `yaml:"recent_window"`
}

type ScoreWeights struct {
	Quality     float64 `yaml:"quality"`
	Priority    float64 `yaml:"priority"`
	Diversity   float64 `yaml:"diversity"`
	TypeBalance float64 `yaml:"type_balance"`
}

type ScanConfig struct {
	Timeout     time.Duration `env:"SCAN_TIMEOUT" yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
}

// PlatformConfig holds the scanning limits for one platform.
// Limits is keyed by window name: hourly, daily or monthly.
// Params are passed through to the platform's scanner.
type PlatformConfig struct {
	Enabled       bool              `yaml:"enabled"`
	BatchSize     int               `yaml:"batch_size"`
	Timeout       time.Duration     `yaml:"timeout"`
	RatePerMinute int               `yaml:"rate_per_minute"`
	Limits        map[string]int    `yaml:"limits"`
	Params        map[string]string `yaml:"params"`
}

type PostingConfig struct {
	Enabled       bool          `env:"POSTING_ENABLED" yaml:"enabled"`
	ChannelPrefix string        `yaml:"channel_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
	DueGrace      time.Duration `yaml:"due_grace"`
}

// Load reads the configuration at path with defaults and env overrides.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithDefaults[Config](path, setDefaults)
	if err != nil {
		return nil, err
	}
	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}
	return cfg, nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = StorageDriverPostgres
	}
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	cfg.Logging.SetDefaults()
	setSelectorDefaults(&cfg.Selector)
	setScanDefaults(&cfg.Scan)
	setPlatformDefaults(cfg)
	setPostingDefaults(&cfg.Posting)
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Port == 0 {
		s.Port = defaultPort
	}
	if s.Timezone == "" {
		s.Timezone = defaultTimezone
	}
	if s.CronSpec == "" {
		s.CronSpec = defaultCronSpec
	}
	if s.Version == "" {
		s.Version = "dev"
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == "" {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.DBName == "" {
		d.DBName = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = defaultMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddr
	}
	if r.DedupTTL == 0 {
		r.DedupTTL = defaultDedupTTL
	}
	if r.DiversityTTL == 0 {
		r.DiversityTTL = defaultDiversityTTL
	}
}

func setSelectorDefaults(s *SelectorConfig) {
	if len(s.PlatformPriority) == 0 {
		s.PlatformPriority = []string{"reddit", "youtube", "imgur", "bluesky", "tumblr"}
	}
	if len(s.TypeWeights) == 0 {
		s.TypeWeights = map[string]float64{
			"video": 1.2,
			"gif":   1.15,
			"image": 1.0,
			"text":  0.9,
			"link":  0.8,
		}
	}
	if s.Weights == (ScoreWeights{}) {
		s.Weights = ScoreWeights{Quality: 0.4, Priority: 0.3, Diversity: 0.2, TypeBalance: 0.1}
	}
	if s.RecentWindow == 0 {
		s.RecentWindow = defaultRecentWindow
	}
}

func setScanDefaults(s *ScanConfig) {
	if s.Timeout == 0 {
		s.Timeout = defaultScanTimeout
	}
	if s.Concurrency == 0 {
		s.Concurrency = 4
	}
}

func setPlatformDefaults(cfg *Config) {
	if cfg.Platforms == nil {
		cfg.Platforms = map[string]PlatformConfig{}
	}
	for name, p := range cfg.Platforms {
		if p.BatchSize == 0 {
			p.BatchSize = defaultScanBatchSize
		}
		if p.Timeout == 0 {
			p.Timeout = cfg.Scan.Timeout
		}
		if p.RatePerMinute == 0 {
			p.RatePerMinute = defaultRatePerMinute
		}
		cfg.Platforms[name] = p
	}
}

func setPostingDefaults(p *PostingConfig) {
	if p.ChannelPrefix == "" {
		p.ChannelPrefix = defaultChannelPrefix
	}
	if p.Timeout == 0 {
		p.Timeout = defaultPostTimeout
	}
	if p.DueGrace == 0 {
		p.DueGrace = defaultDueGrace
	}
}

// Location resolves the operating timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Service.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Service.Timezone, err)
	}
	return loc, nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Service.Port < minPort || c.Service.Port > maxPort {
		return &ValidationError{Field: "service.port", Message: fmt.Sprintf("must be between %d and %d", minPort, maxPort)}
	}
	if _, err := c.Location(); err != nil {
		return &ValidationError{Field: "service.timezone", Message: err.Error()}
	}
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return &ValidationError{Field: "storage.driver", Message: fmt.Sprintf("unknown driver %q", c.Storage.Driver)}
	}
	for _, name := range c.Selector.PlatformPriority {
		if _, err := domain.ParsePlatform(name); err != nil {
			return &ValidationError{Field: "selector.platform_priority", Message: err.Error()}
		}
	}
	for name := range c.Selector.TypeWeights {
		if _, err := domain.ParseContentType(name); err != nil {
			return &ValidationError{Field: "selector.type_weights", Message: err.Error()}
		}
	}
	for name, p := range c.Platforms {
		if _, err := domain.ParsePlatform(name); err != nil {
			return &ValidationError{Field: "platforms." + name, Message: err.Error()}
		}
		for window, limit := range p.Limits {
			if _, err := domain.ParseLimitWindow(window); err != nil {
				return &ValidationError{Field: "platforms." + name + ".limits", Message: err.Error()}
			}
			if limit < 0 {
				return &ValidationError{Field: "platforms." + name + ".limits." + window, Message: "must not be negative"}
			}
		}
	}
	if c.Scan.Timeout <= 0 {
		return &ValidationError{Field: "scan.timeout", Message: "must be positive"}
	}
	return nil
}

// PlatformLimits converts the configured limits into typed windows.
func (p PlatformConfig) PlatformLimits() map[domain.LimitWindow]int {
	out := make(map[domain.LimitWindow]int, len(p.Limits))
	for window, limit := range p.Limits {
		out[domain.LimitWindow(window)] = limit
	}
	return out
}
