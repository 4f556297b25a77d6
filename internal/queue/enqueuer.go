package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskProcessJob = "job:process"
)

// ErrUnavailable indicates the task broker could not be reached. Callers
// may retry; the dispatch path reports it as service-unavailable.
var ErrUnavailable = errors.New("task queue unavailable")

// ProcessJobPayload is the payload carried by a job:process task.
type ProcessJobPayload struct {
	JobID string `json:"job_id"`
}

// Enqueuer hands job identifiers to the background queue. It wraps an
// asynq client whose lifecycle is tied to process startup/shutdown.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an Enqueuer connected to the given Redis broker.
func NewEnqueuer(redisURL string) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{client: asynq.NewClient(opt)}, nil
}

// EnqueueProcessJob enqueues a background processing task for the given
// job ID. The task retries up to 3 times with asynq's default backoff,
// times out after 10 minutes, and is retained for 24 hours after
// completion. Broker connectivity failures are reported as ErrUnavailable.
func (e *Enqueuer) EnqueueProcessJob(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(ProcessJobPayload{JobID: jobID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskProcessJob,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	if _, err := e.client.EnqueueContext(ctx, task); err != nil {
		if isBrokerUnreachable(err) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Close closes the underlying broker connection gracefully.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// isBrokerUnreachable reports whether the enqueue failure looks like a
// transient broker connectivity problem rather than a programming error.
func isBrokerUnreachable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
