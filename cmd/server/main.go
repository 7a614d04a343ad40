package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"buffer-orchestrator/internal/mediabuffer"
	"buffer-orchestrator/internal/mediastore"
	"buffer-orchestrator/internal/playback"
	"buffer-orchestrator/internal/platform/config"
	"buffer-orchestrator/internal/platform/logger"
	"buffer-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	engineCfg := mediabuffer.DefaultConfig()
	engineCfg.DurationRetryDelay = config.GetEnvDuration("DURATION_RETRY_DELAY", engineCfg.DurationRetryDelay)
	engineCfg.DurationTolerance = config.GetEnvFloat("DURATION_TOLERANCE", engineCfg.DurationTolerance)
	engineCfg.LiveDurationFloor = config.GetEnvFloat("LIVE_DURATION_FLOOR", engineCfg.LiveDurationFloor)
	engineCfg.LiveDurationMargin = config.GetEnvFloat("LIVE_DURATION_MARGIN", engineCfg.LiveDurationMargin)
	engineCfg.MaxMergeBytes = config.GetEnvInt("MAX_MERGE_BYTES", engineCfg.MaxMergeBytes)

	storeCfg := mediastore.Config{
		Latency:      config.GetEnvDuration("STORE_LATENCY", 0),
		QuotaSeconds: config.GetEnvFloat("STORE_QUOTA_SECONDS", 0),
	}

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	repo := playback.NewInMemoryRepository()
	svc := playback.NewService(repo, playback.Options{
		Engine:  engineCfg,
		Store:   storeCfg,
		Logger:  log,
		Metrics: met,
	})
	h := playback.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.ActiveSessions()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"log_level", logLevel,
		"duration_retry_delay", engineCfg.DurationRetryDelay,
		"max_merge_bytes", engineCfg.MaxMergeBytes,
		"store_latency", storeCfg.Latency,
		"store_quota_seconds", storeCfg.QuotaSeconds,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	svc.Close()

	log.Info("server stopped")
}
