package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/medrecord-proxy/internal/adapter/api"
	"github.com/user/medrecord-proxy/internal/adapter/audit"
	"github.com/user/medrecord-proxy/internal/adapter/metrics"
	"github.com/user/medrecord-proxy/internal/adapter/phi"
	"github.com/user/medrecord-proxy/internal/adapter/ratelimit"
	mongorepo "github.com/user/medrecord-proxy/internal/adapter/repository/mongo"
	"github.com/user/medrecord-proxy/internal/adapter/repository/postgres"
	redisrepo "github.com/user/medrecord-proxy/internal/adapter/repository/redis"
	"github.com/user/medrecord-proxy/internal/pkg/config"
	"github.com/user/medrecord-proxy/internal/pkg/logger"
	"github.com/user/medrecord-proxy/internal/pkg/secrets"
	"github.com/user/medrecord-proxy/internal/usecase"

	_ "github.com/lib/pq" // Keep for postgres driver
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	m := metrics.NewProxyMetrics()

	// --- Admin and Metrics Server ---
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewAdminRouter(),
	}
	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Backing Connections ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("could not connect to redis, audit events will be dropped", "error", err)
	}

	mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURL)
	if err != nil {
		log.Error("failed to connect to mongo", "error", err)
		os.Exit(1)
	}
	defer mongoClient.Disconnect(context.Background())

	// --- Repositories ---
	sealer, err := secrets.NewSealer(cfg.EncryptionKey)
	if err != nil {
		log.Error("failed to initialize secret sealer", "error", err)
		os.Exit(1)
	}

	quotaRepo := postgres.NewQuotaRepository(db, log)
	tenantRepo := postgres.NewTenantRepository(db)
	userRepo := postgres.NewUserRepository(db)
	secretRepo := postgres.NewSecretRepository(db, sealer)

	router := mongorepo.NewPartitionRouter(mongoClient, log)
	dispatcher := mongorepo.NewDispatcher(router, log)

	auditStream, err := redisrepo.NewAuditStream(redisClient, cfg.AuditStream, "", "", log)
	if err != nil {
		log.Error("failed to initialize audit stream", "error", err)
		os.Exit(1)
	}
	emitter := audit.NewEmitter(ctx, auditStream, log)

	// --- Rate Limiters ---
	globalLimiter := ratelimit.New(cfg.GlobalRateLimit, cfg.RateLimitWindow, log)
	tenantLimiter := ratelimit.New(cfg.TenantRateLimit, cfg.RateLimitWindow, log)
	go globalLimiter.Run(ctx, cfg.RateLimitSweepInterval, cfg.RateLimitGrace)
	go tenantLimiter.Run(ctx, cfg.RateLimitSweepInterval, cfg.RateLimitGrace)

	// --- Services ---
	redactor := phi.NewRedactor(strings.Split(cfg.PHIRedactionKeys, ","), log)
	quotaService := usecase.NewQuotaService(quotaRepo, emitter, m, log)
	identityService := usecase.NewIdentityService(userRepo, tenantRepo, secretRepo, cfg.CollaboratorTimeout, log)
	authService := usecase.NewAuthService(userRepo, tenantRepo, secretRepo, quotaRepo, emitter, cfg.JWTExpiry, log)
	proxyService := usecase.NewProxyService(
		identityService,
		quotaService,
		globalLimiter,
		tenantLimiter,
		dispatcher,
		emitter,
		m,
		redactor,
		cfg.StorageTimeout,
		log,
	)

	// --- Proxy Server ---
	proxyRouter := api.NewRouter(cfg, log, proxyService, authService, quotaService, m, globalLimiter, tenantLimiter)
	proxyServer := &http.Server{
		Addr:         cfg.ProxyAddr,
		Handler:      proxyRouter,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("starting proxy server", "addr", proxyServer.Addr)
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("proxy server failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	log.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	if err := proxyServer.Shutdown(shutdownCtx); err != nil {
		log.Error("proxy server shutdown failed", "error", err)
	}

	log.Info("servers shut down gracefully")
}
