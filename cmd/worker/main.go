package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rfidattendance/internal/config"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/queue"
	"rfidattendance/internal/scanlog"
	"rfidattendance/internal/store"
)

// Worker consumes scan events from the queue and appends them to the audit log.
func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		logger.Error("QUEUE_BACKEND=memory is consumed inside the api process; the worker needs redis")
		os.Exit(1)
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, stop := context.WithTimeout(ctx, 30*time.Second)
	err = db.Migrate(migrateCtx)
	stop()
	if err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", "addr", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, "")
	consumer := scanlog.NewConsumer(q, scanlog.NewRepository(db.Client), logger)

	logger.Info("worker started, waiting for scan events")
	n, err := consumer.Run(ctx)
	if err != nil {
		logger.Error("queue consume init failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped", "stored", n)
}
