package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rfidattendance/internal/attendance"
	"rfidattendance/internal/auth"
	"rfidattendance/internal/config"
	"rfidattendance/internal/directory"
	"rfidattendance/internal/httpapi"
	"rfidattendance/internal/httpmiddleware"
	"rfidattendance/internal/live"
	"rfidattendance/internal/logging"
	"rfidattendance/internal/queue"
	"rfidattendance/internal/scanlog"
	"rfidattendance/internal/session"
	"rfidattendance/internal/store"
	"rfidattendance/internal/timetable"
	"rfidattendance/internal/users"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	var broker live.Broker
	if cfg.LiveBackend == "memory" {
		broker = live.NewMemory(32)
	} else {
		broker = live.NewRedis(redisClient.Client, "")
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	dir := directory.Default()
	if cfg.StudentsFile != "" {
		if dir, err = directory.LoadFile(cfg.StudentsFile); err != nil {
			return err
		}
	}
	logger.Info("student directory loaded", "students", dir.Len())

	if cfg.DeviceAPIKey == "" {
		logger.Warn("ESP32_API_KEY is not set, device endpoints are unauthenticated")
	}

	userSvc := users.NewService(users.NewRepository(db.Client))
	sessions := session.NewController(session.NewRepository(db.Client), userSvc, broker, cfg.Location)
	scanRepo := scanlog.NewRepository(db.Client)
	att := attendance.NewService(attendance.Deps{
		Store:     attendance.NewRepository(db.Client),
		Directory: dir,
		Sessions:  sessions,
		Roster:    userSvc,
		Scans:     scanlog.NewPublisher(q),
		Live:      broker,
		Location:  cfg.Location,
	})
	tt := timetable.NewService(timetable.NewRepository(db.Client), userSvc)

	// The in-memory queue only exists inside this process, so drain it here.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cfg.QueueBackend == "memory" {
		go func() {
			if _, err := scanlog.NewConsumer(q, scanRepo, logger).Run(ctx); err != nil {
				logger.Error("scan consumer stopped", "error", err)
			}
		}()
	}

	h := &httpapi.Handler{
		Users:      userSvc,
		Issuer:     auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Sessions:   sessions,
		Attendance: att,
		Timetable:  tt,
		Directory:  dir,
		Scans:      scanRepo,
		Hub:        live.NewHub(broker, cfg.CORSOrigins),
		Checks:     map[string]httpapi.Checker{"db": db, "redis": redisClient},
		Location:   cfg.Location,
	}
	r := httpapi.NewRouter(h, httpapi.Options{
		DeviceKey:   cfg.DeviceAPIKey,
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
		Logger:      logger,
		Production:  cfg.Production(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
