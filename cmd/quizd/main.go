package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/router"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	"github.com/stemsi/exstem-attempt/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.LoadServer()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting quiz service")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Load Catalog ──────────────────────────────────────────────────
	catalog := repository.DefaultCatalog()
	if cfg.CatalogFile != "" {
		catalog, err = repository.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("Failed to load catalog")
		}
	}
	log.Info().Int("courses", len(catalog.Courses)).Msg("Catalog loaded")

	// ─── Connect to PostgreSQL (optional) ──────────────────────────────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	courseRepo := repository.NewMemoryCourseRepository(catalog.Courses)

	var attemptRepo repository.AttemptRepository = repository.NewMemoryAttemptRepository()
	if rdb != nil {
		attemptRepo = repository.NewRedisAttemptRepository(rdb)
	}

	// ─── Initialize Services ──────────────────────────────────────────
	var studentRepo repository.StudentRepository
	if pool != nil {
		studentRepo = repository.NewPostgresStudentRepository(pool)
	} else {
		students, err := catalog.HashedStudents(func(p string) (string, error) {
			return service.HashPassword(p, cfg.BcryptCost)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare catalog students")
		}
		studentRepo, err = repository.NewMemoryStudentRepository(students)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to index catalog students")
		}
	}
	authService := service.NewAuthService(cfg, studentRepo, log)

	var leaveQueue service.LeaveQueue
	if rdb != nil && pool != nil {
		leaveQueue = worker.NewLeaveQueue(rdb)
	}
	attemptService := service.NewAttemptService(courseRepo, attemptRepo, leaveQueue, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Attempt: handler.NewAttemptHandler(attemptService, log),
		WS:      handler.NewWSHandler(attemptService, cfg.TimerFeedInterval, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	if leaveQueue != nil {
		leaveWorker := worker.NewLeaveWorker(pool, rdb, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			leaveWorker.Start(workerCtx)
		}()
	} else {
		log.Warn().Msg("Leave events are kept with attempts only; set DATABASE_URL and REDIS_URL to archive them")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	// 30 auth requests per minute per IP.
	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	defer authLimiter.Stop()
	r := router.SetupRouter(authService, handlers, authLimiter, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
