package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/appforge/appforge/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a job does not exist or is not visible to
// the caller.
var ErrNotFound = errors.New("job not found")

// Enqueuer hands a job identifier to the background queue. Satisfied by
// *queue.Enqueuer; tests substitute fakes.
type Enqueuer interface {
	EnqueueProcessJob(ctx context.Context, jobID string) error
}

// Service owns the job store and the dispatch of background processing.
type Service struct {
	db       *gorm.DB
	enqueuer Enqueuer
}

// NewService creates a job service bound to the given database and queue.
func NewService(db *gorm.DB, enqueuer Enqueuer) *Service {
	return &Service{db: db, enqueuer: enqueuer}
}

// CreateAndDispatch inserts a pending job row and enqueues a background
// task carrying its identifier. The row is committed before the task is
// handed to the queue so a worker that picks the task up immediately can
// already see it; if the enqueue fails the row is deleted again, so no
// orphan pending job without a corresponding task survives. The enqueue
// error is returned unwrapped enough for the caller to classify (queue
// unavailability vs. unexpected failure).
func (s *Service) CreateAndDispatch(ctx context.Context, prompt string, ownerID uuid.UUID) (*models.GenerationJob, error) {
	job := &models.GenerationJob{
		Prompt:  prompt,
		Status:  models.JobStatusPending,
		OwnerID: ownerID,
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := s.enqueuer.EnqueueProcessJob(ctx, job.ID.String()); err != nil {
		if delErr := s.db.WithContext(ctx).Delete(job).Error; delErr != nil {
			return nil, fmt.Errorf("enqueue job: %w (row cleanup failed: %v)", err, delErr)
		}
		return nil, err
	}
	return job, nil
}

// GetOwned returns a job by id, scoped to its owner. Jobs belonging to
// other users are reported as not found rather than forbidden.
func (s *Service) GetOwned(ctx context.Context, id, ownerID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("look up job: %w", err)
	}
	return &job, nil
}

// ListOwned returns all of the owner's jobs, newest first.
func (s *Service) ListOwned(ctx context.Context, ownerID uuid.UUID) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}
