// Package orchestrator sequences the external collaborator calls for one
// generation job and maps their outcome to a terminal status. Collaborator
// failures are fully contained here: Run never returns an error, only a
// failed result.
package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/appforge/appforge/internal/engine"
	"github.com/appforge/appforge/internal/models"
	"github.com/appforge/appforge/internal/scm"
)

// descriptionMaxLen bounds the repository description derived from the prompt.
const descriptionMaxLen = 140

// Result is the outcome of orchestrating one job.
type Result struct {
	Status   models.JobStatus
	PRURL    *string
	ThreadID *string
	RunID    *string
}

// Orchestrator drives the source-control and generation-engine
// collaborators for a loaded job.
type Orchestrator struct {
	logger *slog.Logger
	repos  scm.RepositoryCreator
	engine engine.ExecutionStreamer
}

// New creates an Orchestrator over the given collaborators.
func New(logger *slog.Logger, repos scm.RepositoryCreator, eng engine.ExecutionStreamer) *Orchestrator {
	return &Orchestrator{logger: logger, repos: repos, engine: eng}
}

// Run creates a repository for the job, streams an engine execution, and
// scans the event sequence for a completion signal carrying a result URL.
// The returned status is completed only when such a URL was obtained.
func (o *Orchestrator) Run(ctx context.Context, job *models.GenerationJob) Result {
	repoName := "appforge-" + shortID(job.ID.String())
	repoURL, err := o.repos.CreateRepository(ctx, repoName, truncatePrompt(job.Prompt))
	if err != nil {
		o.logger.Error("repository creation failed", "job_id", job.ID, "error", err.Error())
		return Result{Status: models.JobStatusFailed}
	}

	events, err := o.engine.StreamExecution(ctx, engine.RunInput{
		Prompt:        job.Prompt,
		RepositoryURL: repoURL,
		JobID:         job.ID.String(),
	})
	if err != nil {
		o.logger.Error("engine execution failed", "job_id", job.ID, "error", err.Error())
		return Result{Status: models.JobStatusFailed}
	}

	result := Result{Status: models.JobStatusFailed}
	for _, ev := range events {
		switch ev.Type {
		case engine.EventTypeRunCreated:
			if v, ok := ev.Data["thread_id"]; ok && v != "" {
				result.ThreadID = &v
			}
			if v, ok := ev.Data["run_id"]; ok && v != "" {
				result.RunID = &v
			}
		case engine.EventTypeCompletion:
			if url, ok := ev.Data["pr_url"]; ok && url != "" {
				result.Status = models.JobStatusCompleted
				result.PRURL = &url
			}
		}
	}

	if result.Status != models.JobStatusCompleted {
		o.logger.Warn("execution finished without a completion URL", "job_id", job.ID, "events", len(events))
	}
	return result
}

// truncatePrompt derives a repository description from a prefix of the
// prompt, cutting on a rune boundary so the result stays valid UTF-8.
func truncatePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if len(prompt) <= descriptionMaxLen {
		return prompt
	}
	cut := descriptionMaxLen - 3
	for cut > 0 && !utf8.RuneStart(prompt[cut]) {
		cut--
	}
	return prompt[:cut] + "..."
}

// shortID returns the first UUID group, enough to keep repo names readable.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
