// internal/store/store.go
package store

import (
	"context"
	"time"

	"git-analytics-service/internal/model"
)

// UpdateRequestOptions carries the optional fields of a request status update.
// Nil fields leave the stored value untouched.
type UpdateRequestOptions struct {
	ErrorMessage *string
	Progress     *model.Progress
	ResultFiles  []string
}

// Store is the persistence boundary of the service. Implemented by the
// pgx-backed Postgres store; tests substitute a testify mock.
type Store interface {
	// Organizations and projects (seeded from configuration).
	UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error)
	UpsertProject(ctx context.Context, project model.Project) error

	// Repositories.
	UpsertRepository(ctx context.Context, repo model.Repository) error
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	ListRepositories(ctx context.Context) ([]model.Repository, error)
	ListRepositoriesByProject(ctx context.Context, projectID string) ([]model.Repository, error)

	// Ingestion merges. SaveCommits and SavePullRequests are idempotent
	// insert-if-absent operations keyed by natural id; ReplaceBranches swaps
	// the full branch set atomically.
	SaveCommits(ctx context.Context, repositoryID string, commits []model.Commit) (int64, error)
	ReplaceBranches(ctx context.Context, repositoryID string, branches []model.Branch) error
	SavePullRequests(ctx context.Context, repositoryID string, prs []model.PullRequest) (int64, error)

	// Reads used by analytics and the HTTP surface.
	ListCommits(ctx context.Context, repositoryID string, limit int) ([]model.Commit, error)
	CommitCount(ctx context.Context, repositoryID string) (int64, error)
	ListBranches(ctx context.Context, repositoryID string) ([]model.Branch, error)
	ListPullRequests(ctx context.Context, repositoryID string) ([]model.PullRequest, error)

	// Analytics result snapshots.
	SaveAnalyticsResult(ctx context.Context, result *model.AnalyticsResult) error
	LatestAnalyticsResult(ctx context.Context, repositoryID string) (*model.AnalyticsResult, error)
	CleanupOldResults(ctx context.Context, olderThan time.Duration) (int64, error)

	// Analytics request queue.
	CreateRequest(ctx context.Context, projectName string, repositoryIDs []string) (*model.AnalyticsRequest, error)
	GetRequest(ctx context.Context, id int64) (*model.AnalyticsRequest, error)
	ListRequests(ctx context.Context, status model.RequestStatus) ([]model.AnalyticsRequest, error)
	UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus, opts UpdateRequestOptions) error
}
