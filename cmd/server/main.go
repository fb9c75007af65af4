// Package main provides the API server entry point for the latency monitor.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/latency-monitor/internal/api"
	"github.com/latency-monitor/internal/config"
	"github.com/latency-monitor/internal/logging"
	"github.com/latency-monitor/internal/retry"
	"github.com/latency-monitor/internal/service"
	"github.com/latency-monitor/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() // nolint:errcheck // best-effort flush on exit

	logger.Info("latency monitor starting",
		zap.String("log_level", cfg.Logging.Level),
		zap.Int("freshness_minutes", cfg.Aggregation.FreshnessMinutes),
	)

	ctx := context.Background()

	// Connect to the stores with backoff; databases routinely come up after
	// the service under container orchestration.
	var postgres *storage.PostgresDB
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "postgres connect", func(ctx context.Context, attempt int) error {
		postgres, err = storage.NewPostgresDB(&cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.Fatal("failed to connect to Postgres", zap.Error(err))
	}
	defer postgres.Close()

	var clickhouse *storage.ClickHouseDB
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "clickhouse connect", func(ctx context.Context, attempt int) error {
		clickhouse, err = storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		return err
	})
	if err != nil {
		logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer clickhouse.Close()

	var redis *storage.RedisCache
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "redis connect", func(ctx context.Context, attempt int) error {
		redis, err = storage.NewRedisCache(&cfg.Database.Redis)
		return err
	})
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	logger.Info("database connections established")

	endpointRepo := storage.NewEndpointRepository(postgres)
	probeRepo := storage.NewProbeRepository(clickhouse)
	cacheService := storage.NewCacheService(redis, cfg.Cache.TTL)

	ingestService := service.NewIngestService(endpointRepo, probeRepo, logger)
	summaryService := service.NewSummaryService(endpointRepo, probeRepo, cacheService, cfg.Aggregation, logger)
	detailService := service.NewDetailService(endpointRepo, probeRepo, cfg.Aggregation, logger)

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		IngestRPS:       cfg.RateLimit.IngestRPS,
		IngestBurst:     cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, ingestService, summaryService, detailService, logger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
