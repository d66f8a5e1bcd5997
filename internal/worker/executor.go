// internal/worker/executor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git-analytics-service/internal/analytics"
	"git-analytics-service/internal/ingest"
	"git-analytics-service/internal/metrics"
	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
)

// RepoIngestor is the slice of the ingestion protocol the executor drives.
type RepoIngestor interface {
	IngestRepository(ctx context.Context, projectName string, repo model.Repository) (ingest.Stats, error)
}

// ArtifactWriter renders the per-repository result files.
type ArtifactWriter interface {
	WriteRepositoryArtifacts(projectName string, repo model.Repository, result analytics.Result, commits []model.Commit) ([]string, error)
}

// JobExecutor runs one analytics request end to end: ingest each listed
// repository, analyze it, write artifacts, and drive the request through its
// status transitions. A failure on one repository is recorded as an outcome
// and does not fail the request; only orchestration-level errors do.
type JobExecutor struct {
	store   store.Store
	ingest  RepoIngestor
	writer  ArtifactWriter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ Executor = (*JobExecutor)(nil)

// NewJobExecutor wires the executor. metrics may be nil.
func NewJobExecutor(st store.Store, ing RepoIngestor, writer ArtifactWriter, logger *slog.Logger, m *metrics.Metrics) *JobExecutor {
	return &JobExecutor{
		store:   st,
		ingest:  ing,
		writer:  writer,
		logger:  logger,
		metrics: m,
	}
}

// Execute processes the request. The returned error reflects orchestration
// failures only; in that case the request has already been marked Failed.
func (e *JobExecutor) Execute(ctx context.Context, req model.AnalyticsRequest) error {
	start := time.Now()

	err := e.process(ctx, req)
	if err != nil && !errors.Is(err, context.Canceled) {
		msg := err.Error()
		if updateErr := e.store.UpdateRequestStatus(ctx, req.ID, model.StatusFailed, store.UpdateRequestOptions{
			ErrorMessage: &msg,
		}); updateErr != nil {
			e.logger.Error("Failed to mark request as failed", "request_id", req.ID, "error", updateErr)
		}
		if e.metrics != nil {
			e.metrics.RequestsProcessed.WithLabelValues(string(model.StatusFailed)).Inc()
		}
		return err
	}
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.RequestsProcessed.WithLabelValues(string(model.StatusCompleted)).Inc()
		e.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (e *JobExecutor) process(ctx context.Context, req model.AnalyticsRequest) error {
	logger := e.logger.With("request_id", req.ID, "project", req.ProjectName)

	progress := &model.Progress{TotalRepos: len(req.RepositoryIDs)}
	if err := e.store.UpdateRequestStatus(ctx, req.ID, model.StatusRunning, store.UpdateRequestOptions{
		Progress: progress,
	}); err != nil {
		return fmt.Errorf("claiming request: %w", err)
	}

	var resultFiles []string
	outcomes := make([]model.RepoOutcome, 0, len(req.RepositoryIDs))

	// Repositories are processed strictly in the order listed on the request.
	for i, repoID := range req.RepositoryIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		// A repository id that cannot be resolved is an orchestration
		// failure: the request referenced something the store never had.
		repo, err := e.store.GetRepository(ctx, repoID)
		if err != nil {
			return fmt.Errorf("resolving repository %s: %w", repoID, err)
		}

		progress.CompletedRepos = i
		progress.CurrentRepo = repo.Name
		if err := e.store.UpdateRequestStatus(ctx, req.ID, model.StatusRunning, store.UpdateRequestOptions{
			Progress: progress,
		}); err != nil {
			return fmt.Errorf("recording progress: %w", err)
		}

		files, err := e.processRepository(ctx, req.ProjectName, *repo)
		outcome := model.RepoOutcome{
			RepositoryID:   repo.ID,
			RepositoryName: repo.Name,
			Succeeded:      err == nil,
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			// Keep going with the remaining repositories.
			logger.Error("Error processing repository", "repo", repo.Name, "error", err)
			outcome.Error = err.Error()
		} else {
			resultFiles = append(resultFiles, files...)
		}
		outcomes = append(outcomes, outcome)

		if e.metrics != nil {
			e.metrics.ReposProcessed.WithLabelValues(outcomeLabel(err)).Inc()
		}
	}

	progress.CompletedRepos = len(req.RepositoryIDs)
	progress.CurrentRepo = ""
	progress.RepoOutcomes = outcomes

	if resultFiles == nil {
		resultFiles = []string{}
	}
	if err := e.store.UpdateRequestStatus(ctx, req.ID, model.StatusCompleted, store.UpdateRequestOptions{
		Progress:    progress,
		ResultFiles: resultFiles,
	}); err != nil {
		return fmt.Errorf("completing request: %w", err)
	}

	logger.Info("Analytics request completed",
		"repositories", len(req.RepositoryIDs), "result_files", len(resultFiles),
		"failed_repositories", countFailed(outcomes))
	return nil
}

// processRepository ingests one repository, computes its analytics snapshot,
// persists it and writes the export artifacts.
func (e *JobExecutor) processRepository(ctx context.Context, projectName string, repo model.Repository) ([]string, error) {
	start := time.Now()

	stats, err := e.ingest.IngestRepository(ctx, projectName, repo)
	if err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", repo.Name, err)
	}
	if e.metrics != nil {
		e.metrics.IngestDuration.Observe(time.Since(start).Seconds())
		e.metrics.CommitsIngested.Add(float64(stats.NewCommits))
	}

	commits, err := e.store.ListCommits(ctx, repo.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading commits for %s: %w", repo.Name, err)
	}
	branches, err := e.store.ListBranches(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("loading branches for %s: %w", repo.Name, err)
	}
	prs, err := e.store.ListPullRequests(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("loading pull requests for %s: %w", repo.Name, err)
	}

	result := analytics.Analyze(repo, commits, branches, prs)

	row, err := result.ToModel(repo.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveAnalyticsResult(ctx, row); err != nil {
		return nil, fmt.Errorf("saving analytics result for %s: %w", repo.Name, err)
	}

	files, err := e.writer.WriteRepositoryArtifacts(projectName, repo, result, commits)
	if err != nil {
		return nil, fmt.Errorf("writing artifacts for %s: %w", repo.Name, err)
	}
	return files, nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func countFailed(outcomes []model.RepoOutcome) int {
	var n int
	for _, o := range outcomes {
		if !o.Succeeded {
			n++
		}
	}
	return n
}
