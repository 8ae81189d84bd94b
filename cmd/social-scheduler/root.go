package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/social-scheduler/internal/app"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/config"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/database"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/domain"
	"github.com/jonesrussell/north-cloud/social-scheduler/internal/logger"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "social-scheduler",
		Short:         "Content scheduling and diversity engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default is $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newTickCmd(opts),
		newMaterializeCmd(opts),
		newDiversityCmd(opts),
		newMigrateCmd(opts),
		newFlushCacheCmd(opts),
		newVersionCmd(),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, logger.Logger, error) {
	path := o.configPath
	if path == "" {
		path = config.GetConfigPath("config.yml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.debug {
		cfg.Service.Debug = true
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development || cfg.Service.Debug,
		OutputPaths: cfg.Logging.OutputPaths,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(
		logger.String("service", cfg.Service.Name),
		logger.String("version", version),
	)
	return cfg, log, nil
}

// withApp loads configuration, wires the app, runs fn and tears down.
func (o *rootOptions) withApp(fn func(a *app.App) error) error {
	cfg, log, err := o.load()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	cfg.Service.Version = version

	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn("Failed to close connections", logger.Error(closeErr))
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the periodic cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

func newTickCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scan, materialize, post and report cycle, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				rep, err := a.Cycle.RunOnce(cmd.Context())
				if printErr := printJSON(cmd.OutOrStdout(), rep); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func newMaterializeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "materialize [DAY]",
		Short: "Create and fill the slots of a day (default today) and print the forecast",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				day, err := dayArg(a, args)
				if err != nil {
					return err
				}
				s, err := a.Scheduler.GetOrMaterializeSchedule(cmd.Context(), day)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func newDiversityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diversity [DAY]",
		Short: "Print the diversity report for a day (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(func(a *app.App) error {
				day, err := dayArg(a, args)
				if err != nil {
					return err
				}
				rep, err := a.Diversity.GetDiversityMetrics(cmd.Context(), day)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}

func dayArg(a *app.App, args []string) (time.Time, error) {
	if len(args) == 0 {
		return a.Scheduler.Today(), nil
	}
	return domain.ParseDay(args[0], a.Location)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down>",
		Short:     "Apply or revert the database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			changed, err := database.RunMigrations(cfg.Database, args[0])
			if err != nil {
				return err
			}
			if !changed {
				log.Info("No migrations to apply", logger.String("direction", args[0]))
				return nil
			}
			log.Info("Migrations completed", logger.String("direction", args[0]))
			return nil
		},
	}
}

func newFlushCacheCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush-cache",
		Short: "Delete every scheduler key from Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(func(a *app.App) error {
				n, err := a.FlushCache(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d keys\n", n)
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "social-scheduler %s\n", version)
		},
	}
}
