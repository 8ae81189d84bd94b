package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/api"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

const cronStopTimeout = 2 * time.Minute

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}

// NewCron schedules RunOnce on the configured spec in the operating
// timezone. A tick that fires while the previous run is still going is
// skipped.
func (a *App) NewCron(ctx context.Context) (*cron.Cron, error) {
	cl := cronLogger{log: a.Logger}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithLocation(a.Location),
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	_, err := c.AddFunc(a.Config.Service.CronSpec, func() {
		a.runCycle(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cycle %q: %w", a.Config.Service.CronSpec, err)
	}
	return c, nil
}

func (a *App) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := a.Cycle.RunOnce(ctx)
	if err != nil {
		a.Logger.Error("Scheduled cycle stopped",
			logger.Error(err),
			logger.Strings("errors", rep.Errors),
		)
		return
	}
	a.Logger.Info("Scheduled cycle completed",
		logger.Duration("duration", rep.Duration),
		logger.Strings("materialized", rep.Materialized),
		logger.Int("phase_errors", len(rep.Errors)),
	)
}

// Serve runs the admin API and the cron trigger until ctx is done or the
// server fails, then stops both.
func (a *App) Serve(ctx context.Context) error {
	c, err := a.NewCron(ctx)
	if err != nil {
		return err
	}

	server := api.NewServer(a.Config.Service.Port, a.Router(), a.Logger)
	errCh := server.StartAsync()
	c.Start()
	a.Logger.Info("Scheduler started",
		logger.String("cron", a.Config.Service.CronSpec),
		logger.String("timezone", a.Location.String()),
		logger.String("storage", a.Config.Storage.Driver),
		logger.Bool("redis", a.Cache != nil),
		logger.Bool("scanning", a.Scanner != nil),
		logger.Bool("posting", a.Poster != nil),
	)

	var serveErr error
	select {
	case err, ok := <-errCh:
		if ok {
			serveErr = err
		}
	case <-ctx.Done():
		a.Logger.Info("Shutdown requested")
	}

	cronDone := c.Stop()
	//nolint:contextcheck // ctx is already canceled here
	shutdownErr := server.Shutdown(context.Background())

	select {
	case <-cronDone.Done():
	case <-time.After(cronStopTimeout):
		a.Logger.Warn("Cycle still running at shutdown", logger.Duration("waited", cronStopTimeout))
	}
	return errors.Join(serveErr, shutdownErr)
}
