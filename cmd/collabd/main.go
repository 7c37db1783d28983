package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/fableworks/collab/pkg/api"
	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/config"
	"github.com/fableworks/collab/pkg/guest"
	"github.com/fableworks/collab/pkg/middleware"
	"github.com/fableworks/collab/pkg/observability"
	"github.com/fableworks/collab/pkg/projects"
	"github.com/fableworks/collab/pkg/sessions"
	"github.com/fableworks/collab/pkg/shares"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "collabd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Infof("Starting collab authority on %s:%s", cfg.Server.Host, cfg.Server.Port)

	ctx := context.Background()

	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// Redis (optional)
	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable at startup, continuing without it")
		}
	}

	// OpenTelemetry
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}

	// Metrics
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	// Audit trail
	var recorder audit.Recorder = audit.Nop{}
	var auditLogger *audit.DBLogger
	if cfg.Audit.Enabled {
		auditLogger, err = audit.NewDBLogger(db)
		if err != nil {
			return fmt.Errorf("initializing audit logger: %w", err)
		}
		recorder = auditLogger
	}

	// Owner authentication
	verifier, err := buildVerifier(ctx, cfg.Auth)
	if err != nil {
		return fmt.Errorf("initializing owner auth: %w", err)
	}

	// Participant registry: Redis-backed when available.
	var participants guest.ParticipantRegistry = guest.NewMemoryRegistry()
	if redisClient != nil {
		participants = guest.NewRedisRegistry(redisClient)
	}

	cache, err := guest.NewSummaryCache()
	if err != nil {
		return fmt.Errorf("initializing summary cache: %w", err)
	}

	projectStore := projects.NewDBStore(db)
	server := api.NewServer(api.Options{
		SessionAuthority: sessions.NewAuthority(sessions.NewDBStore(db), projectStore),
		ShareAuthority:   shares.NewAuthority(shares.NewDBStore(db), projectStore),
		ProjectStore:     projectStore,
		Verifier:         verifier,
		Participants:     participants,
		Cache:            cache,
		Recorder:         recorder,
		Metrics:          metrics,
		Logger:           logger,
		RedisClient:      redisClient,
		Tracing:          cfg.Observability.OTelEnabled,
		GuestRateLimit: &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.GuestPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.RateLimit.GuestBurst,
		},
		ValidationRateLimit: &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.ValidationPerMinute,
			WindowDuration:    time.Minute,
			BurstSize:         cfg.RateLimit.ValidationBurst,
		},
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health endpoints live on their own port for k8s probes.
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Audit retention sweep
	var sweeper *cron.Cron
	if auditLogger != nil {
		sweeper = cron.New()
		_, err := sweeper.AddFunc(cfg.Audit.CleanupSchedule, func() {
			deleted, err := auditLogger.Cleanup(context.Background(), cfg.Audit.Retention)
			if err != nil {
				logger.WithError(err).Error("Audit cleanup failed")
				return
			}
			logger.Infof("Audit cleanup removed %d rows", deleted)
		})
		if err != nil {
			return fmt.Errorf("scheduling audit cleanup: %w", err)
		}
		sweeper.Start()
	}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		manager := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
		manager.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return healthServer.Shutdown(shutdownCtx)
		})
		manager.RegisterShutdownFunc(func(context.Context) error {
			if sweeper != nil {
				sweeper.Stop()
			}
			return nil
		})
		manager.RegisterShutdownFunc(func(context.Context) error {
			if auditLogger != nil {
				return auditLogger.Close()
			}
			return nil
		})
		manager.RegisterShutdownFunc(func(context.Context) error {
			if redisClient != nil {
				return redisClient.Close()
			}
			return nil
		})
		manager.RegisterShutdownFunc(func(context.Context) error {
			return db.Close()
		})
		manager.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, providers, logger)
		})
		return manager.WaitForShutdown()
	})

	return group.Wait()
}

// buildVerifier picks the owner token verifier: OIDC in real
// deployments, the static map for local development.
func buildVerifier(ctx context.Context, cfg config.AuthConfig) (middleware.TokenVerifier, error) {
	if cfg.OIDCIssuer != "" {
		return middleware.NewOIDCVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	}
	return middleware.NewStaticVerifier(cfg.DevTokens), nil
}
