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

	"github.com/appforge/appforge/internal/api"
	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/database"
	"github.com/appforge/appforge/internal/engine"
	"github.com/appforge/appforge/internal/logging"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/queue"
	"github.com/appforge/appforge/internal/scm"
	"github.com/appforge/appforge/internal/worker"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	db, err := database.Init(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer database.Close(db)

	if err := database.RunMigrations(db); err != nil {
		logger.Error("failed to run migrations", "error", err.Error())
		os.Exit(1)
	}

	if cfg.Server.Mode == "debug" {
		if err := database.SeedDevData(db); err != nil {
			logger.Warn("failed to seed development data", "error", err.Error())
		}
	}

	enqueuer, err := queue.NewEnqueuer(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to create task enqueuer", "error", err.Error())
		os.Exit(1)
	}
	defer enqueuer.Close()

	if cfg.Server.Mode == "debug" {
		// Single-process development mode: run the worker in this process so
		// jobs complete without a separate binary.
		repos := scm.NewClient(cfg.Collaborators.SCMBaseURL, cfg.Collaborators.SCMToken, cfg.Collaborators.Stub)
		eng := engine.NewClient(cfg.Collaborators.EngineBaseURL, cfg.Collaborators.Stub)
		stopWorker, err := worker.Start(cfg, db, orchestrator.New(logger, repos, eng))
		if err != nil {
			logger.Error("failed to start embedded worker", "error", err.Error())
			os.Exit(1)
		}
		defer stopWorker()
	}

	tm, err := auth.NewTokenManager(cfg.JWT.SecretKey, cfg.JWT.Algorithm, cfg.JWT.Lifetime())
	if err != nil {
		logger.Error("failed to create token manager", "error", err.Error())
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to parse Redis URL", "error", err.Error())
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	router := api.NewRouter(cfg, db, enqueuer, tm, rdb)

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: router,
	}

	go func() {
		logger.Info("API server starting", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err.Error())
	}
}
