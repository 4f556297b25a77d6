package jobs

import (
	"errors"
	"net/http"

	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJobRequest is the job creation payload. Prompts shorter than 10
// characters are rejected before any row is inserted.
type CreateJobRequest struct {
	Prompt string `json:"prompt" binding:"required,min=10"`
}

// CreateJobHandler handles POST /api/v1/jobs/. Returns 202 with the
// created job immediately; the caller does not wait for background
// completion. A broker outage yields 503 so clients can retry.
func CreateJobHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}

		var req CreateJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
			return
		}

		job, err := svc.CreateAndDispatch(c.Request.Context(), req.Prompt, user.ID)
		if err != nil {
			if errors.Is(err, queue.ErrUnavailable) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Job queue is unavailable, try again later"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.JSON(http.StatusAccepted, job)
	}
}

// GetJobHandler handles GET /api/v1/jobs/:id for the job's owner.
func GetJobHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
			return
		}

		job, err := svc.GetOwned(c.Request.Context(), id, user.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, job)
	}
}

// ListJobsHandler handles GET /api/v1/jobs/, returning the caller's jobs
// newest first.
func ListJobsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}

		jobs, err := svc.ListOwned(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, jobs)
	}
}
