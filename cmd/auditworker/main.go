package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/user/medrecord-proxy/internal/adapter/repository/postgres"
	redisrepo "github.com/user/medrecord-proxy/internal/adapter/repository/redis"
	"github.com/user/medrecord-proxy/internal/pkg/config"
	"github.com/user/medrecord-proxy/internal/pkg/logger"
	"github.com/user/medrecord-proxy/internal/usecase"
)

const (
	consumerGroup      = "audit-writers"
	processingInterval = 1 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting audit worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stopChan
		log.Info("shutdown signal received, stopping worker...")
		cancel()
	}()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	consumerName, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname for consumer name, using default", "error", err)
		consumerName = "auditworker-default"
	}

	auditStream, err := redisrepo.NewAuditStream(redisClient, cfg.AuditStream, consumerGroup, consumerName, log)
	if err != nil {
		log.Error("failed to create audit stream", "error", err)
		os.Exit(1)
	}
	auditSink := postgres.NewAuditRepository(db, log)

	processAudit := usecase.NewProcessAuditUseCase(auditStream, auditSink, log)

	ticker := time.NewTicker(processingInterval)
	defer ticker.Stop()

	log.Info("audit worker started, persisting events...", "group", consumerGroup, "consumer", consumerName)

Loop:
	for {
		select {
		case <-ticker.C:
			if _, err := processAudit.ProcessBatch(ctx); err != nil {
				log.Error("error processing audit batch", "error", err)
			}
		case <-ctx.Done():
			log.Info("context cancelled, shutting down worker loop")
			break Loop
		}
	}

	log.Info("audit worker shut down gracefully")
}
