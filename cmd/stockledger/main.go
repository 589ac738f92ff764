package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-extras/cobraflags"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/stockledger/cmd/stockledger/cli"
	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	sourceURLFlag = "source-url"
	outputFlag    = "output"
)

var importFlags = map[string]cobraflags.Flag{
	sourceURLFlag: &cobraflags.StringFlag{
		Name:  sourceURLFlag,
		Value: "",
		Usage: "Catalog feed URL (defaults to CATALOG_SOURCE_URL)",
	},
	outputFlag: &cobraflags.StringFlag{
		Name:  outputFlag,
		Value: "text",
		Usage: "Report format (text, json)",
	},
}

func main() {
	if app.SkipStartup("stockledger") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "stockledger",
		Short:        "Transactional stock ledger API and operations",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCommand(), newMigrateCommand(), newImportCommand(), newJobsCommand())
	return root
}

// loadRuntime reads the configuration and builds the matching logger.
func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg), nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			deps, err := app.Build(ctx, cfg, logger)
			if err != nil {
				logger.Error("build dependencies", slog.Any("error", err))
				return err
			}
			defer func() {
				if err := deps.Close(context.Background()); err != nil {
					logger.Warn("close dependencies", slog.Any("error", err))
				}
			}()

			go deps.QueryCache.Listen(ctx)

			router := app.NewRouter(app.RouterParams{
				Logger:           logger,
				Config:           cfg,
				InventoryHandler: inventory.NewHandler(logger, deps.Inventory, deps.ImportEnqueuer()),
				JobHandler:       deps.JobHandler(),
				Metrics:          deps.Metrics,
				HealthChecks:     deps.HealthChecks(),
			})

			server := &http.Server{
				Addr:         cfg.AppAddr,
				Handler:      router,
				ReadTimeout:  cfg.AppReadTimeout,
				WriteTimeout: cfg.AppWriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("http server", slog.Any("error", err))
					return err
				}
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate [up|status]",
		Short: "Apply or inspect the schema migrations",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if err := db.Migrate(cmd.Context(), cfg.PGDSN, logger); err != nil {
				logger.Error("migrate", slog.Any("error", err))
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			status, err := db.Status(cmd.Context(), cfg.PGDSN, logger)
			if err != nil {
				return err
			}
			return cli.WriteMigrationStatus(cmd.OutOrStdout(), status)
		},
	})
	return migrateCmd
}

func newImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Run a catalog import in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			deps, err := app.Build(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = deps.Close(context.Background()) }()

			report, runErr := deps.Importer.Run(ctx, uuid.NewString(), importFlags[sourceURLFlag].GetString())
			if errors.Is(runErr, shared.ErrLockHeld) {
				return fmt.Errorf("another catalog import is running: %w", runErr)
			}
			if err := cli.WriteImportReport(cmd.OutOrStdout(), report, importFlags[outputFlag].GetString() == "json"); err != nil {
				return err
			}
			return runErr
		},
	}
	cobraflags.RegisterMap(importCmd, importFlags)
	return importCmd
}

func newJobsCommand() *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	withJobs := func(fn func(*cobra.Command, *cli.JobsCLI, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr, cli.JobsOptions{
				CatalogSourceURL:     cfg.CatalogSourceURL,
				IdempotencyRetention: cfg.IdempotencyRetention,
			})
			if err != nil {
				return err
			}
			defer func() { _ = jobsCLI.Close() }()
			return fn(cmd, jobsCLI, args)
		}
	}

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "trigger <task-type>",
		Short: "Enqueue catalog:import or idempotency:cleanup",
		Args:  cobra.ExactArgs(1),
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
			return err
		}),
	})
	jobsCmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Show queue counters",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			stats, err := c.InspectQueue()
			if err != nil {
				return err
			}
			return cli.WriteQueueStats(cmd.OutOrStdout(), stats)
		}),
	})

	var size int
	scheduledCmd := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: withJobs(func(cmd *cobra.Command, c *cli.JobsCLI, _ []string) error {
			tasks, err := c.ListScheduled(size)
			if err != nil {
				return err
			}
			return cli.WriteScheduled(cmd.OutOrStdout(), tasks)
		}),
	}
	scheduledCmd.Flags().IntVar(&size, "size", 10, "Number of tasks to list")
	jobsCmd.AddCommand(scheduledCmd)
	return jobsCmd
}
