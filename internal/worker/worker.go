package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/logging"
	"github.com/appforge/appforge/internal/models"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/queue"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// Runner orchestrates a loaded job and maps it to a terminal result.
// Satisfied by *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, job *models.GenerationJob) orchestrator.Result
}

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
func Run(cfg *config.Config, db *gorm.DB, runner Runner) error {
	srv, mux, err := newServer(cfg, db, runner)
	if err != nil {
		return err
	}
	// Run blocks and handles its own signal interception
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop
// function, for embedding in the API process during development.
func Start(cfg *config.Config, db *gorm.DB, runner Runner) (stop func(), err error) {
	srv, mux, err := newServer(cfg, db, runner)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, db *gorm.DB, runner Runner) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     cfg.Worker.Concurrency,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskProcessJob, ProcessJobHandler(logger, db, runner))

	logger.Info("Worker starting", "concurrency", cfg.Worker.Concurrency, "redis", cfg.Redis.URL)
	return srv, mux, nil
}

// ProcessJobHandler processes one generation job per task invocation: load,
// mark processing, orchestrate, persist the terminal outcome. The
// pending->processing write is persisted before orchestration begins so it
// is visible to readers.
func ProcessJobHandler(logger *slog.Logger, db *gorm.DB, runner Runner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload queue.ProcessJobPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		var job models.GenerationJob
		if err := db.WithContext(ctx).First(&job, "id = ?", payload.JobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// A missing job is treated as already handled: log, don't retry.
				logger.Error("Job not found", "job_id", payload.JobID)
				return fmt.Errorf("job not found: %w", asynq.SkipRetry)
			}
			// Database error - retryable
			return fmt.Errorf("failed to fetch job: %w", err)
		}

		logger.Info(
			"Processing job:process task",
			"job_id", job.ID,
			"owner_id", job.OwnerID,
		)

		switch {
		case job.Status.Terminal():
			// Duplicate delivery of a finished job: nothing left to do.
			logger.Warn("Skipping job already in a terminal state", "job_id", job.ID, "status", job.Status)
			return fmt.Errorf("job already %s: %w", job.Status, asynq.SkipRetry)
		case job.Status == models.JobStatusProcessing:
			// Redelivery after a failure mid-task. Run the work again so
			// the retry budget can still carry the job to a terminal state.
			logger.Warn("Re-running job found in processing", "job_id", job.ID)
		default:
			if err := job.Transition(models.JobStatusProcessing); err != nil {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			if err := db.WithContext(ctx).Model(&job).Update("status", job.Status).Error; err != nil {
				return fmt.Errorf("failed to mark job processing: %w", err)
			}
		}

		result := runner.Run(ctx, &job)

		if err := job.Transition(result.Status); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		updates := map[string]interface{}{
			"status": job.Status,
		}
		if result.PRURL != nil {
			updates["pr_url"] = *result.PRURL
		}
		if result.ThreadID != nil {
			updates["thread_id"] = *result.ThreadID
		}
		if result.RunID != nil {
			updates["run_id"] = *result.RunID
		}
		if err := db.WithContext(ctx).Model(&job).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to persist job outcome: %w", err)
		}

		logger.Info(
			"Job processing finished",
			"job_id", job.ID,
			"status", job.Status,
		)
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
