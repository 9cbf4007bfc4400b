package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/examtrust/examtrust-backend/internal/config"
	"github.com/examtrust/examtrust-backend/internal/database"
	"github.com/examtrust/examtrust-backend/internal/handler"
	"github.com/examtrust/examtrust-backend/internal/logger"
	"github.com/examtrust/examtrust-backend/internal/monitor"
	"github.com/examtrust/examtrust-backend/internal/repository"
	"github.com/examtrust/examtrust-backend/internal/router"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/examtrust/examtrust-backend/internal/storage"
	"github.com/examtrust/examtrust-backend/internal/validator"
	"github.com/examtrust/examtrust-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExamTrust Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	examRepo := repository.NewExamRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	proctorLogRepo := repository.NewProctorLogRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	evidenceStore := storage.NewLocalEvidenceStore(cfg.EvidenceDir, cfg.MaxEvidenceBytes)
	rescoreQueue := worker.NewRescoreQueue(rdb)
	publisher := monitor.NewRedisPublisher(rdb)

	authService := service.NewAuthService(cfg)
	catalogService := service.NewCatalogService(examRepo, rdb, cfg.ExamCacheTTL, log)
	submissionService := service.NewSubmissionService(submissionRepo, catalogService, evidenceStore, rescoreQueue, cfg.EvidenceTimeout, log)
	proctorService := service.NewProctorService(proctorLogRepo, submissionRepo, evidenceStore, publisher, cfg.EvidenceTimeout, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Submission: handler.NewSubmissionHandler(submissionService),
		Proctor:    handler.NewProctorHandler(proctorService),
		Monitor:    handler.NewMonitorHandler(rdb, catalogService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	rescoreWorker := worker.NewRescoreWorker(submissionService, rdb, log)
	go rescoreWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for the queue to drain.
	workerCancel()
	time.Sleep(2 * time.Second)

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
