package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carefin/carefin/internal/config"
	"github.com/carefin/carefin/internal/domain/alert"
	"github.com/carefin/carefin/internal/domain/finance"
	"github.com/carefin/carefin/internal/domain/forecast"
	"github.com/carefin/carefin/internal/platform/auth"
	"github.com/carefin/carefin/internal/platform/db"
	"github.com/carefin/carefin/internal/platform/lock"
	"github.com/carefin/carefin/internal/platform/middleware"
	"github.com/carefin/carefin/internal/platform/validate"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "carefin-server",
		Short: "Department budget monitoring and spend forecasting API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(recomputeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Recompute every department's budget for the current month",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			locker, closeLocker, err := newLocker(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeLocker()

			svcs := newServices(pool, locker, logger)
			summary, err := svcs.finance.RecomputeAllForCurrentMonth(ctx)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			if len(summary.Failed) > 0 {
				return fmt.Errorf("%d department(s) failed", len(summary.Failed))
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, s *finance.RecomputeSummary) {
	fmt.Fprintf(w, "Period: %s\n", s.Period.Format("2006-01"))
	fmt.Fprintf(w, "Processed: %d\n", s.Processed)
	fmt.Fprintf(w, "Failed: %d\n", len(s.Failed))
	for _, f := range s.Failed {
		fmt.Fprintf(w, "  %s: %s\n", f.DepartmentID, f.Error)
	}
}

// newLogger writes JSON, or console output in development, at LOG_LEVEL.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	})
}

// newLocker picks Redis when REDIS_URL is set so budget updates serialize
// across instances; otherwise locks are process-local.
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func(), error) {
	if !cfg.UsesRedisLocks() {
		logger.Info().Msg("using in-process budget locks")
		return lock.NewLocalLocker(), func() {}, nil
	}
	rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Msg("using redis budget locks")
	locker := lock.NewRedisLocker(rdb, lock.RedisOptions{
		TTL:          cfg.LockTTL,
		RetryCount:   cfg.LockRetryCount,
		RetryBackoff: cfg.LockRetryBackoff,
	}, logger)
	return locker, func() { _ = rdb.Close() }, nil
}

type services struct {
	finance   *finance.Service
	alerts    *alert.Service
	forecasts *forecast.Service
}

func newServices(pool *pgxpool.Pool, locker lock.Locker, logger zerolog.Logger) *services {
	alertSvc := alert.NewService(alert.NewRepoPG(pool), logger)
	directory := finance.NewDirectoryPG(pool)
	financeSvc := finance.NewService(finance.Deps{
		Costs:       finance.NewProcedureCostRepoPG(pool),
		Ledger:      finance.NewLedgerRepoPG(pool),
		Budgets:     finance.NewBudgetRepoPG(pool),
		Catalog:     directory,
		Departments: directory,
		Tx:          db.NewTxManager(pool),
		Locker:      locker,
		Evaluator:   alertSvc,
		Logger:      logger,
	})
	return &services{
		finance:   financeSvc,
		alerts:    alertSvc,
		forecasts: forecast.NewService(financeSvc, financeSvc, logger),
	}
}

// newRouter builds the echo instance with global middleware, public
// endpoints and the /api/v1 domain routes. dbHealth may be nil.
func newRouter(cfg *config.Config, logger zerolog.Logger, svcs *services, dbHealth echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if dbHealth != nil {
		e.GET("/health/db", dbHealth)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	finance.NewHandler(svcs.finance).RegisterRoutes(apiV1)
	alert.NewHandler(svcs.alerts).RegisterRoutes(apiV1)
	forecast.NewHandler(svcs.forecasts).RegisterRoutes(apiV1)

	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode; all requests get admin access")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up budget locks")
	}
	defer closeLocker()

	e := newRouter(cfg, logger, newServices(pool, locker, logger), db.HealthHandler(pool, cfg.DBSchema))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
