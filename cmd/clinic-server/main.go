package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/inventory"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/treatment"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
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
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
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
			})
		},
	}
	cmd.AddCommand(statusCmd)

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Down(ctx, steps)
				if err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				fmt.Printf("Rolled back %d migration(s).\n", count)
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(downCmd)

	cmd.PersistentFlags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	return cmd
}

// withMigrator connects to the database and runs fn with a Migrator. When
// Redis is configured the run is serialized with a distributed lock.
func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: 2, MinConns: 0})
	if err != nil {
		return err
	}
	defer pool.Close()

	m := db.NewMigrator(pool, dir)
	if cfg.CacheEnabled() {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		m.SetLocker(cache.NewLocker(rdb, 5*time.Minute, 500*time.Millisecond, 120, logger))
	}
	return fn(ctx, m)
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn().Err(err).Msg("opentelemetry error")
	}))
	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("trace flush failed")
		}
	}()
	logger.Info().Str("exporter", cfg.TraceExporter).Msg("tracing configured")

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var rdb *redis.Client
	if cfg.CacheEnabled() {
		rdb, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, asset cache disabled")
		} else {
			defer rdb.Close()
			logger.Info().Msg("connected to redis")
		}
	}

	var pub events.Publisher = events.Nop{}
	if cfg.EventsEnabled() {
		p, err := events.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("amqp unavailable, events disabled")
		} else {
			pub = p
			logger.Info().Str("exchange", cfg.AMQPExchange).Msg("connected to amqp")
		}
	}
	defer pub.Close()

	// Domain wiring
	invSvc := inventory.NewService(inventory.NewAssetRepoPG(pool))
	if rdb != nil {
		invSvc.SetCache(cache.NewRedisCache(rdb, cfg.ServiceName+":"), cfg.AssetCacheTTL)
	}
	treatSvc := treatment.NewService(treatment.NewRepoPG(pool), invSvc, db.NewTxManager(pool))
	treatSvc.SetPublisher(pub)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), cfg.DefaultPhoneRegion)

	e := newServer(cfg, logger)
	e.GET("/health/db", db.HealthHandler(pool))
	api := e.Group("/api")
	registerAPI(api,
		patient.NewHandler(patientSvc),
		inventory.NewHandler(invSvc),
		treatment.NewHandler(treatSvc),
	)

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
