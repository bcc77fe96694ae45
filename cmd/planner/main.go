/*
main.go - Application entry point

PURPOSE:
  The planner command. Serves the allocation engine over HTTP, applies plan
  files to a database, and replays plans in memory to print the resulting
  grids.

COMMANDS:
  serve                 HTTP API with the consolidation scheduler
  plan run <file>       Apply a plan in memory and print tasks, queues, load
  plan load <file>      Apply a plan to the database (--reset to start over)
  scenarios             List the embedded demo scenarios
  consolidate           Run one consolidation pass against the database

CONFIGURATION:
  Flags, PLANNER_* environment variables and an optional YAML file
  (--config). See config/config.go for the keys.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the consolidation scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  planner serve --db ./data/planner.db --port 3000
  PLANNER_LOG_FORMAT=json planner serve
  planner plan run api/scenarios/machine-shop.yaml --zoom week
  planner plan load plan.yaml --reset --db ./data/planner.db

SEE ALSO:
  - api/server.go: Router configuration
  - planning/service.go: Planning service
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/warp/allocation-engine/api"
	"github.com/warp/allocation-engine/config"
	"github.com/warp/allocation-engine/planning"
	"github.com/warp/allocation-engine/store/sqlite"
)

var (
	v      = config.New()
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "planner",
	Short: "Resource allocation engine",
	Long: `planner distributes task effort over resource calendars.
- Tasks own resource allocations; each allocation spreads its effort over working days.
- Specific allocations name a resource, generic ones pick resources by criteria.
- Limiting resources work one task at a time through a queue.
- Consolidated days are executed work and never move again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := config.ReadFile(v, path); err != nil {
				return err
			}
		}
		loaded, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = loaded
		logger, err = newLogger(cfg)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

func main() {
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("db", "planner.db", "SQLite database path")
	rootCmd.PersistentFlags().String("log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "text", "text or json")
	_ = v.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(scenariosCmd())
	rootCmd.AddCommand(consolidateCmd())
}

func newLogger(c *config.Config) (*slog.Logger, error) {
	level, err := c.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// withService opens the configured database for the duration of fn.
func withService(fn func(svc *planning.Service) error) error {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	return fn(planning.NewService(db,
		planning.WithCascadePolicy(cfg.Queue.Cascade),
		planning.WithLogger(logger)))
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *planning.Service) error {
				return serve(svc)
			})
		},
	}
	cmd.Flags().Int("port", 8080, "HTTP server port")
	cmd.Flags().Bool("scheduler", true, "run the consolidation scheduler")
	cmd.Flags().Duration("scheduler-interval", time.Hour, "time between consolidation passes")
	_ = v.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("scheduler.enabled", cmd.Flags().Lookup("scheduler"))
	_ = v.BindPFlag("scheduler.interval", cmd.Flags().Lookup("scheduler-interval"))
	return cmd
}

func serve(svc *planning.Service) error {
	handler := api.NewHandler(svc, logger)

	scheduler := api.NewConsolidationScheduler(svc, cfg.Scheduler.Interval, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	handler.Scheduler = scheduler
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", cfg.DBPath, "cascade", cfg.Queue.Cascade)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// =============================================================================
// SCENARIOS AND CONSOLIDATION
// =============================================================================

func scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the embedded demo scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, list, err := api.Scenarios()
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Tasks", "Steps", "Description"})
			for _, s := range list {
				tw.AppendRow(table.Row{s.ID, s.Tasks, s.Steps, s.Description})
			}
			tw.Render()
			return nil
		},
	}
}

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate auto_consolidate tasks up to yesterday",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(svc *planning.Service) error {
				summary, err := api.NewConsolidationScheduler(svc, cfg.Scheduler.Interval, logger).RunNow(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "until %s: %d processed, %d skipped, %d failed\n",
					summary.Until, summary.Processed, summary.Skipped, summary.Failed)
				if summary.Failed > 0 {
					return fmt.Errorf("%d consolidations failed", summary.Failed)
				}
				return nil
			})
		},
	}
}
