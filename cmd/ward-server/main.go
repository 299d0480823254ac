package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ward/internal/config"
	"github.com/ehr/ward/internal/domain/admission"
	"github.com/ehr/ward/internal/domain/branding"
	"github.com/ehr/ward/internal/domain/rbac"
	"github.com/ehr/ward/internal/domain/staff"
	"github.com/ehr/ward/internal/domain/ward"
	"github.com/ehr/ward/internal/platform/auth"
	"github.com/ehr/ward/internal/platform/db"
	"github.com/ehr/ward/internal/platform/events"
	"github.com/ehr/ward/internal/platform/middleware"
	"github.com/ehr/ward/internal/platform/telemetry"
	"github.com/ehr/ward/migrations"
	"github.com/ehr/ward/pkg/apperr"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ward-server",
		Short: "Hospital ward management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ward API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// migrationFiles returns the embedded schema, or dir when one is given.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
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
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationFiles(dir)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded schema)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationFiles(dir)).Status(ctx)
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
		},
	}
	statusCmd.Flags().String("dir", "", "Path to a migrations directory (defaults to the embedded schema)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the system roles and the default admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)
			roleSvc, userSvc := accessServices(pool, tokens, nil, logger)
			return seed(ctx, roleSvc, userSvc, cfg.DefaultAdminPassword, logger)
		},
	}
}

// accessServices builds the role and user services. The role service
// counts users through the staff repository.
func accessServices(pool *pgxpool.Pool, tokens *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) (*rbac.Service, *staff.Service) {
	userRepo := staff.NewRepo(pool)
	roleSvc := rbac.NewService(rbac.NewRepo(pool), userRepo, logger)
	userSvc := staff.NewService(userRepo, roleSvc, tokens, revocations, logger)
	return roleSvc, userSvc
}

func seed(ctx context.Context, roles *rbac.Service, users *staff.Service, password string, logger zerolog.Logger) error {
	system, err := roles.EnsureSystemRoles(ctx)
	if err != nil {
		return fmt.Errorf("seed system roles: %w", err)
	}
	created, err := users.EnsureDefaultAdmin(ctx, system[rbac.AdminRoleName], password)
	if err != nil {
		return fmt.Errorf("seed default admin: %w", err)
	}
	if created {
		logger.Warn().Str("username", staff.DefaultAdminUsername).Msg("default admin user created, change its password")
	}
	return nil
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.New()

	// Token revocation: Redis when configured so logouts hold across
	// replicas, in-process otherwise.
	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		revocations = auth.NewRedisRevocationStore(client)
		logger.Info().Msg("using redis token revocation store")
	} else {
		mem := auth.NewMemoryRevocationStore(5 * time.Minute)
		defer mem.Close()
		revocations = mem
	}

	// Ward events: RabbitMQ when configured, the log otherwise.
	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.AMQPURL != "" {
		rmq, err := events.NewRabbitMQPublisher(cfg.AMQPURL, cfg.EventsQueue, logger)
		if err != nil {
			logger.Error().Err(err).Msg("rabbitmq unavailable, events go to the log")
		} else {
			defer rmq.Close()
			publisher = rmq
		}
	}
	emitter := events.NewEmitter(publisher, metrics, logger)

	// Domain services
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)
	roleSvc, userSvc := accessServices(pool, tokens, revocations, logger)
	userSvc.SetLoginRecorder(metrics)

	if err := seed(ctx, roleSvc, userSvc, cfg.DefaultAdminPassword, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed access control")
	}

	unitRepo := ward.NewCareUnitRepo(pool)
	bedRepo := ward.NewBedRepo(pool)
	fluidRepo := ward.NewFluidRepo(pool)
	medRepo := ward.NewMedicationRepo(pool)
	cascade := ward.NewCascade(unitRepo, bedRepo, fluidRepo, medRepo, logger)
	cascade.SetRecorder(metrics)
	wardSvc := ward.NewService(unitRepo, bedRepo, fluidRepo, medRepo, cascade, logger)
	wardSvc.SetEmitter(emitter)

	admissionSvc := admission.NewService(admission.NewRepo(pool), unitRepo, bedRepo, db.NewTxRunner(pool), logger)
	admissionSvc.SetEmitter(emitter)
	admissionSvc.SetRecorder(metrics)

	brandingSvc := branding.NewService(branding.NewRepo(pool), logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Authenticate(auth.AuthenticatorConfig{
		Tokens:      tokens,
		Identities:  userSvc,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}))
	apiV1.Use(middleware.Audit(logger))

	loginLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.LoginRateLimitRPS,
		BurstSize:         cfg.LoginRateLimitBurst,
	})

	staff.NewHandler(userSvc).RegisterRoutes(apiV1, loginLimit)
	rbac.NewHandler(roleSvc).RegisterRoutes(apiV1)
	ward.NewHandler(wardSvc).RegisterRoutes(apiV1)
	admission.NewHandler(admissionSvc).RegisterRoutes(apiV1)
	branding.NewHandler(brandingSvc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting ward server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
