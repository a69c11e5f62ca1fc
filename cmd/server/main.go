package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/streamcave/overlay-api/internal/adapter/discord"
	"github.com/streamcave/overlay-api/internal/adapter/fixtures"
	"github.com/streamcave/overlay-api/internal/adapter/httpserver"
	"github.com/streamcave/overlay-api/internal/adapter/memory"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
	"github.com/streamcave/overlay-api/internal/adapter/postgres"
	"github.com/streamcave/overlay-api/internal/adapter/redis"
	"github.com/streamcave/overlay-api/internal/app"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/config"
	"github.com/streamcave/overlay-api/internal/platform/crypto"
	"github.com/streamcave/overlay-api/internal/platform/logging"
	"github.com/streamcave/overlay-api/internal/platform/version"
)

func runGracefulShutdown(srv *httpserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupCrypto(cfg *config.Config) crypto.Service {
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, Discord credentials are stored unencrypted")
		return crypto.NoopService{}
	}
	svc, err := crypto.NewAESGCM(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	return svc
}

func setupDB(cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracer := postgres.NewQueryTracer(metrics.NewDBMetrics(reg))
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, tracer)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	m := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	var healthChecks []httpserver.HealthCheck

	var store domain.SessionStore
	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg, reg)
		defer pool.Close()

		store = postgres.NewHolderRepo(pool, setupCrypto(cfg), clock)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory session store")
		store = memory.NewSessionStore(clock)
	}

	if cfg.RedisURL != "" {
		redisClient := setupRedis(context.Background(), cfg, reg)
		defer func() { _ = redisClient.Close() }()

		store = redis.NewTokenCache(redisClient, store, cfg.TokenCacheTTL, metrics.NewTokenCacheMetrics(reg))
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}

	sessions := app.NewSessionManager(store, metrics.NewSessionMetrics(reg))

	identity := discord.NewClient(discord.Config{
		ClientID:     cfg.DiscordClientID,
		ClientSecret: cfg.DiscordClientSecret,
		RedirectURI:  cfg.DiscordRedirectURI,
	})

	catalog, err := fixtures.NewCatalog()
	if err != nil {
		slog.Error("Failed to load fixture catalog", "error", err)
		os.Exit(1)
	}

	srv := httpserver.NewServer(cfg, sessions, identity, catalog, catalog, clock, reg, healthChecks)

	done := runGracefulShutdown(srv)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
