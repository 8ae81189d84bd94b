// Package app wires configuration into a running scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/api"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/cache"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/conservation"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/cycle"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/database"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/dedup"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/diversity"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/memstore"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/metrics"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/posting"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/queue"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/scan"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/schedule"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/selector"
)

// ErrCacheDisabled is returned by cache operations when Redis is off.
var ErrCacheDisabled = errors.New("redis cache is disabled")

// Store is every storage capability the services need. Both the Postgres
// store and the in-memory store satisfy it.
type Store interface {
	queue.Store
	schedule.Store
	selector.Store
	diversity.Store
	conservation.UsageStore
	Ping(ctx context.Context) error
}

var (
	_ Store = (*database.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Location  *time.Location
	Store     Store
	Cache     *cache.Cache
	Queue     *queue.Service
	Advisor   *conservation.Advisor
	Scheduler *schedule.Scheduler
	Diversity *diversity.Service
	Scanner   *scan.Runner
	Poster    *posting.Worker
	Cycle     *cycle.Runner

	redis   *redis.Client
	closers []io.Closer
}

// Option customizes New.
type Option func(*options)

type options struct {
	scanners []scan.Scanner
	store    Store
}

// WithScanners registers upstream scanners. Only platforms enabled in the
// configuration are scanned.
func WithScanners(scanners ...scan.Scanner) Option {
	return func(o *options) {
		o.scanners = append(o.scanners, scanners...)
	}
}

// WithStore replaces the configured storage driver.
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// New connects storage and Redis and builds every service.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		Location: loc,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewMetrics(a.Registry)

	if initErr := a.initStorage(o.store); initErr != nil {
		_ = a.Close()
		return nil, initErr
	}
	if initErr := a.initCache(); initErr != nil {
		_ = a.Close()
		return nil, initErr
	}
	if initErr := a.initServices(o.scanners); initErr != nil {
		_ = a.Close()
		return nil, initErr
	}
	return a, nil
}

func (a *App) initStorage(override Store) error {
	if override != nil {
		a.Store = override
		return nil
	}
	switch a.Config.Storage.Driver {
	case config.StorageDriverMemory:
		a.Logger.Warn("Using in-memory storage; nothing survives a restart")
		a.Store = memstore.New()
	default:
		db, err := database.NewPostgresConnection(a.Config.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		store := database.NewStore(db)
		a.Store = store
		a.closers = append(a.closers, store)
		a.Logger.Info("Connected to PostgreSQL",
			logger.String("host", a.Config.Database.Host),
			logger.String("database", a.Config.Database.DBName),
		)
	}
	return nil
}

func (a *App) initCache() error {
	if !a.Config.Redis.Enabled {
		return nil
	}
	client, err := cache.NewClient(a.Config.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	a.redis = client
	a.closers = append(a.closers, client)
	a.Cache = cache.New(client, a.Config.Redis.DedupTTL, a.Config.Redis.DiversityTTL, a.Logger)
	a.Logger.Info("Connected to Redis", logger.String("address", a.Config.Redis.Address))
	return nil
}

func (a *App) initServices(scanners []scan.Scanner) error {
	cfg := a.Config
	selCfg := selector.ConfigFrom(cfg.Selector)
	// Diversity is measured against the platforms the schedule draws from.
	universe := selCfg.PlatformPriority

	// Typed nils must not reach interface parameters.
	var hashCache dedup.HashCache
	var snapCache diversity.SnapshotCache
	schedOpts := []schedule.Option{schedule.WithMetrics(a.Metrics)}
	if a.Cache != nil {
		hashCache = a.Cache
		snapCache = a.Cache
		schedOpts = append(schedOpts, schedule.WithInvalidator(a.Cache))
	}

	a.Queue = queue.NewService(a.Store, dedup.NewDetector(a.Store, hashCache, a.Logger), a.Metrics, a.Logger)
	a.Advisor = conservation.NewAdvisor(a.Store, a.Queue, platformLimits(cfg), a.Location, a.Metrics, a.Logger)
	sel := selector.New(a.Store, selCfg)
	a.Scheduler = schedule.NewScheduler(a.Store, sel, a.Location, universe, a.Logger, schedOpts...)
	a.Diversity = diversity.NewService(a.Store, snapCache, universe, a.Metrics, a.Logger)

	var scanPhase cycle.Scanner
	if enabled := enabledScanners(cfg, scanners, a.Logger); len(enabled) > 0 {
		a.Scanner = scan.NewRunner(enabled, scanSettings(cfg), a.Advisor, a.Queue, cfg.Scan.Concurrency, a.Metrics, a.Logger)
		scanPhase = a.Scanner
	}

	var postPhase cycle.Poster
	if cfg.Posting.Enabled {
		if a.redis == nil {
			return errors.New("posting requires redis to be enabled")
		}
		poster := posting.NewRedisPoster(a.redis, cfg.Posting.ChannelPrefix, cfg.Posting.Timeout)
		a.Poster = posting.NewWorker(a.Scheduler, a.Store, poster, cfg.Posting.DueGrace, a.Metrics, a.Logger)
		postPhase = a.Poster
	}

	a.Cycle = cycle.NewRunner(scanPhase, a.Scheduler, postPhase, a.Diversity, a.Metrics, a.Logger)
	return nil
}

func platformLimits(cfg *config.Config) conservation.Limits {
	limits := make(conservation.Limits, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		if len(p.Limits) > 0 {
			limits[domain.Platform(name)] = p.PlatformLimits()
		}
	}
	return limits
}

func scanSettings(cfg *config.Config) map[domain.Platform]scan.Settings {
	out := make(map[domain.Platform]scan.Settings, len(cfg.Platforms))
	for name, p := range cfg.Platforms {
		out[domain.Platform(name)] = scan.Settings{
			BatchSize:     p.BatchSize,
			Timeout:       p.Timeout,
			RatePerMinute: p.RatePerMinute,
			Params:        p.Params,
		}
	}
	return out
}

func enabledScanners(cfg *config.Config, scanners []scan.Scanner, log logger.Logger) []scan.Scanner {
	out := make([]scan.Scanner, 0, len(scanners))
	for _, s := range scanners {
		p := s.Platform()
		if pc, ok := cfg.Platforms[string(p)]; !ok || !pc.Enabled {
			log.Info("Scanner registered but platform not enabled", logger.Platform(string(p)))
			continue
		}
		out = append(out, s)
	}
	return out
}

// HealthChecks returns the dependency pings served on /health.
func (a *App) HealthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{"storage": a.Store.Ping}
	if a.Cache != nil {
		checks["redis"] = a.Cache.Ping
	}
	return checks
}

// Router builds the admin API over the wired services.
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.Deps{
		Service:   a.Config.Service.Name,
		Version:   a.Config.Service.Version,
		Debug:     a.Config.Service.Debug,
		Content:   a.Queue,
		Advisor:   a.Advisor,
		Schedule:  a.Scheduler,
		Diversity: a.Diversity,
		Cycle:     a.Cycle,
		Gatherer:  a.Registry,
		Checks:    a.HealthChecks(),
	}, a.Logger)
}

// FlushCache drops every scheduler key from Redis.
func (a *App) FlushCache(ctx context.Context) (int64, error) {
	if a.Cache == nil {
		return 0, ErrCacheDisabled
	}
	return a.Cache.Flush(ctx)
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
