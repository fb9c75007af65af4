// Package main provides the retention pruner: a scheduled job that deletes
// probe rows older than the configured retention period.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/latency-monitor/internal/config"
	"github.com/latency-monitor/internal/logging"
	"github.com/latency-monitor/internal/retry"
	"github.com/latency-monitor/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "Run a single prune pass and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() // nolint:errcheck // best-effort flush on exit

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.Fatal("failed to connect to ClickHouse", zap.Error(err))
	}
	defer clickhouse.Close()

	probeRepo := storage.NewProbeRepository(clickhouse)

	prune := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Retention.Days)

		var removed int64
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "prune probes", func(ctx context.Context, attempt int) error {
			var err error
			removed, err = probeRepo.Prune(ctx, cutoff)
			return err
		})
		if err != nil {
			logger.Error("prune pass failed", zap.Error(err))
			return
		}

		logger.Info("prune pass completed",
			zap.Time("cutoff", cutoff),
			zap.Int64("removed", removed),
		)
	}

	if *once {
		prune()
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Retention.Schedule, prune); err != nil {
		logger.Fatal("invalid retention schedule",
			zap.String("schedule", cfg.Retention.Schedule),
			zap.Error(err),
		)
	}
	scheduler.Start()

	logger.Info("pruner started",
		zap.String("schedule", cfg.Retention.Schedule),
		zap.Int("retention_days", cfg.Retention.Days),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("pruner shutting down")
	<-scheduler.Stop().Done()
}
