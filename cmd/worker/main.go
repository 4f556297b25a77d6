package main

import (
	"log/slog"
	"os"

	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/database"
	"github.com/appforge/appforge/internal/engine"
	"github.com/appforge/appforge/internal/logging"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/scm"
	"github.com/appforge/appforge/internal/worker"
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

	repos := scm.NewClient(cfg.Collaborators.SCMBaseURL, cfg.Collaborators.SCMToken, cfg.Collaborators.Stub)
	eng := engine.NewClient(cfg.Collaborators.EngineBaseURL, cfg.Collaborators.Stub)
	orch := orchestrator.New(logger, repos, eng)

	// Blocks until shutdown signal; asynq handles signal interception.
	if err := worker.Run(cfg, db, orch); err != nil {
		logger.Error("worker stopped with error", "error", err.Error())
		os.Exit(1)
	}
}
