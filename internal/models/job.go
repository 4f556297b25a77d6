package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus enumerates the lifecycle states of a generation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the defined job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the move s -> to is allowed by the job
// state machine: pending -> processing -> {completed, failed}.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	}
	return false
}

// GenerationJob is a code-generation request owned by a user. It is created
// in the pending state by the API process and mutated exclusively by the
// background worker afterwards.
type GenerationJob struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Prompt   string    `gorm:"type:text;not null" json:"prompt"`
	Status   JobStatus `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	ThreadID *string   `gorm:"size:255" json:"thread_id,omitempty"`
	RunID    *string   `gorm:"size:255" json:"run_id,omitempty"`
	PRURL    *string   `gorm:"column:pr_url;size:500" json:"pr_url"`
	OwnerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner    User      `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE;" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the gorm default ("generation_job" pluralization).
func (GenerationJob) TableName() string { return "generation_jobs" }

// BeforeCreate assigns a UUID primary key and the initial state.
func (j *GenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// Transition moves the job to the given state, rejecting moves the state
// machine does not define (including anything out of a terminal state).
func (j *GenerationJob) Transition(to JobStatus) error {
	if !to.Valid() {
		return fmt.Errorf("unknown job status %q", to)
	}
	if !j.Status.CanTransition(to) {
		return fmt.Errorf("illegal job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	return nil
}
