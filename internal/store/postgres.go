// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "git-analytics-service/internal/errors"
	"git-analytics-service/internal/model"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) UpsertOrganization(ctx context.Context, org model.Organization) (model.Organization, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO organizations (name, url, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET url = EXCLUDED.url, description = EXCLUDED.description, updated_at = now()
		RETURNING id, name, url, description, created_at, updated_at`,
		org.Name, org.URL, org.Description)

	var out model.Organization
	if err := row.Scan(&out.ID, &out.Name, &out.URL, &out.Description, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return model.Organization{}, fmt.Errorf("upserting organization %q: %w", org.Name, err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertProject(ctx context.Context, project model.Project) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, name, state, visibility, organization_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, state = EXCLUDED.state,
		    visibility = EXCLUDED.visibility, updated_at = now()`,
		project.ID, project.Name, project.State, project.Visibility, project.OrganizationID)
	if err != nil {
		return fmt.Errorf("upserting project %q: %w", project.Name, err)
	}
	return nil
}

func (s *PostgresStore) UpsertRepository(ctx context.Context, repo model.Repository) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO repositories (id, name, project_id, url, default_branch, size, is_fork)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, url = EXCLUDED.url,
		    default_branch = EXCLUDED.default_branch, size = EXCLUDED.size,
		    is_fork = EXCLUDED.is_fork, updated_at = now()`,
		repo.ID, repo.Name, repo.ProjectID, repo.URL, repo.DefaultBranch, repo.Size, repo.IsFork)
	if err != nil {
		return fmt.Errorf("upserting repository %q: %w", repo.Name, err)
	}
	return nil
}

const repositoryColumns = `id, name, project_id, url, default_branch, size, is_fork, created_at, updated_at`

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	err := row.Scan(&r.ID, &r.Name, &r.ProjectID, &r.URL, &r.DefaultBranch, &r.Size, &r.IsFork, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) GetRepository(ctx context.Context, id string) (*model.Repository, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id)
	r, err := scanRepository(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+repositoryColumns+` FROM repositories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRepositories(rows)
}

func (s *PostgresStore) ListRepositoriesByProject(ctx context.Context, projectID string) ([]model.Repository, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE project_id = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRepositories(rows)
}

func collectRepositories(rows pgx.Rows) ([]model.Repository, error) {
	var repos []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

// SaveCommits inserts only the commits whose hashes are not already stored for
// the repository. The existing-id read and the inserts share one transaction,
// so a re-run with overlapping data is a no-op for already-seen commits.
func (s *PostgresStore) SaveCommits(ctx context.Context, repositoryID string, commits []model.Commit) (int64, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT id FROM commits WHERE repository_id = $1`, repositoryID)
	if err != nil {
		return 0, err
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	var inserted int64
	for _, c := range commits {
		if _, ok := existing[c.ID]; ok {
			continue
		}
		// The incoming batch itself may carry duplicates.
		existing[c.ID] = struct{}{}

		changeCounts, err := json.Marshal(c.ChangeCounts)
		if err != nil {
			return 0, err
		}
		parents, err := json.Marshal(orEmpty(c.Parents))
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO commits (id, repository_id, author_name, author_email, author_date,
			                     committer_name, committer_email, committer_date,
			                     message, change_counts, parents, url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			c.ID, repositoryID, c.AuthorName, c.AuthorEmail, c.AuthorDate,
			c.CommitterName, c.CommitterEmail, c.CommitterDate,
			c.Message, changeCounts, parents, c.URL)
		inserted++
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ReplaceBranches swaps the stored branch set for the freshly fetched one in a
// single transaction, so deleted branches disappear and moved refs update. An
// empty input is a no-op: the previous snapshot stays in place.
func (s *PostgresStore) ReplaceBranches(ctx context.Context, repositoryID string, branches []model.Branch) error {
	if len(branches) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM branches WHERE repository_id = $1`, repositoryID); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, b := range branches {
		batch.Queue(`
			INSERT INTO branches (repository_id, name, object_id, creator, url, is_default)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			repositoryID, b.Name, b.ObjectID, b.Creator, b.URL, b.IsDefault)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// SavePullRequests follows the same insert-if-absent pattern as SaveCommits,
// keyed by the repository-scoped pull request number.
func (s *PostgresStore) SavePullRequests(ctx context.Context, repositoryID string, prs []model.PullRequest) (int64, error) {
	if len(prs) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT pull_request_id FROM pull_requests WHERE repository_id = $1`, repositoryID)
	if err != nil {
		return 0, err
	}
	existing := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	var inserted int64
	for _, pr := range prs {
		if _, ok := existing[pr.PullRequestID]; ok {
			continue
		}
		existing[pr.PullRequestID] = struct{}{}

		reviewers, err := json.Marshal(orEmpty(pr.Reviewers))
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO pull_requests (pull_request_id, repository_id, title, description,
			                           source_branch, target_branch, author, created_date,
			                           closed_date, completed_date, status, merge_status,
			                           reviewers, url)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			pr.PullRequestID, repositoryID, pr.Title, pr.Description,
			pr.SourceBranch, pr.TargetBranch, pr.Author, pr.CreatedDate,
			pr.ClosedDate, pr.CompletedDate, pr.Status, pr.MergeStatus,
			reviewers, pr.URL)
		inserted++
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (s *PostgresStore) ListCommits(ctx context.Context, repositoryID string, limit int) ([]model.Commit, error) {
	query := `
		SELECT id, repository_id, author_name, author_email, author_date,
		       committer_name, committer_email, committer_date,
		       message, change_counts, parents, url, created_at
		FROM commits WHERE repository_id = $1 ORDER BY author_date DESC`
	args := []any{repositoryID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []model.Commit
	for rows.Next() {
		var c model.Commit
		var changeCounts, parents []byte
		if err := rows.Scan(&c.ID, &c.RepositoryID, &c.AuthorName, &c.AuthorEmail, &c.AuthorDate,
			&c.CommitterName, &c.CommitterEmail, &c.CommitterDate,
			&c.Message, &changeCounts, &parents, &c.URL, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changeCounts, &c.ChangeCounts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(parents, &c.Parents); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func (s *PostgresStore) CommitCount(ctx context.Context, repositoryID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM commits WHERE repository_id = $1`, repositoryID).Scan(&count)
	return count, err
}

func (s *PostgresStore) ListBranches(ctx context.Context, repositoryID string) ([]model.Branch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, repository_id, name, object_id, creator, url, is_default, created_at
		FROM branches WHERE repository_id = $1 ORDER BY name`, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []model.Branch
	for rows.Next() {
		var b model.Branch
		if err := rows.Scan(&b.ID, &b.RepositoryID, &b.Name, &b.ObjectID, &b.Creator, &b.URL, &b.IsDefault, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *PostgresStore) ListPullRequests(ctx context.Context, repositoryID string) ([]model.PullRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pull_request_id, repository_id, title, description,
		       source_branch, target_branch, author, created_date,
		       closed_date, completed_date, status, merge_status, reviewers, url, created_at
		FROM pull_requests WHERE repository_id = $1 ORDER BY pull_request_id DESC`, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []model.PullRequest
	for rows.Next() {
		var pr model.PullRequest
		var reviewers []byte
		if err := rows.Scan(&pr.ID, &pr.PullRequestID, &pr.RepositoryID, &pr.Title, &pr.Description,
			&pr.SourceBranch, &pr.TargetBranch, &pr.Author, &pr.CreatedDate,
			&pr.ClosedDate, &pr.CompletedDate, &pr.Status, &pr.MergeStatus, &reviewers, &pr.URL, &pr.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(reviewers, &pr.Reviewers); err != nil {
			return nil, err
		}
		prs = append(prs, pr)
	}
	return prs, rows.Err()
}

func (s *PostgresStore) SaveAnalyticsResult(ctx context.Context, result *model.AnalyticsResult) error {
	analysisDate := result.AnalysisDate
	if analysisDate.IsZero() {
		analysisDate = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO analytics_results (repository_id, analysis_date, commit_analytics,
		                               author_analytics, branch_analytics,
		                               pull_request_analytics, repository_health, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		result.RepositoryID, analysisDate, nullableJSON(result.CommitAnalytics),
		nullableJSON(result.AuthorAnalytics), nullableJSON(result.BranchAnalytics),
		nullableJSON(result.PullRequestAnalytics), nullableJSON(result.RepositoryHealth),
		nullableJSON(result.Extra))

	if err := row.Scan(&result.ID, &result.CreatedAt); err != nil {
		return fmt.Errorf("saving analytics result for repository %s: %w", result.RepositoryID, err)
	}
	result.AnalysisDate = analysisDate
	return nil
}

func (s *PostgresStore) LatestAnalyticsResult(ctx context.Context, repositoryID string) (*model.AnalyticsResult, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, repository_id, analysis_date, commit_analytics, author_analytics,
		       branch_analytics, pull_request_analytics, repository_health, extra, created_at
		FROM analytics_results WHERE repository_id = $1
		ORDER BY analysis_date DESC LIMIT 1`, repositoryID)

	var res model.AnalyticsResult
	err := row.Scan(&res.ID, &res.RepositoryID, &res.AnalysisDate, &res.CommitAnalytics,
		&res.AuthorAnalytics, &res.BranchAnalytics, &res.PullRequestAnalytics,
		&res.RepositoryHealth, &res.Extra, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *PostgresStore) CleanupOldResults(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	ct, err := s.pool.Exec(ctx, `DELETE FROM analytics_results WHERE analysis_date < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, projectName string, repositoryIDs []string) (*model.AnalyticsRequest, error) {
	ids, err := json.Marshal(orEmpty(repositoryIDs))
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO analytics_requests (project_name, repository_ids, status)
		VALUES ($1, $2, $3)
		RETURNING id, requested_date`,
		projectName, ids, string(model.StatusRequested))

	req := &model.AnalyticsRequest{
		ProjectName:   projectName,
		RepositoryIDs: repositoryIDs,
		Status:        model.StatusRequested,
	}
	if err := row.Scan(&req.ID, &req.RequestedDate); err != nil {
		return nil, fmt.Errorf("creating analytics request: %w", err)
	}
	return req, nil
}

const requestColumns = `id, project_name, repository_ids, status, requested_date,
	started_date, completed_date, error_message, progress_info, result_files`

func scanRequest(row pgx.Row) (*model.AnalyticsRequest, error) {
	var req model.AnalyticsRequest
	var status string
	var repoIDs, progress, resultFiles []byte

	err := row.Scan(&req.ID, &req.ProjectName, &repoIDs, &status, &req.RequestedDate,
		&req.StartedDate, &req.CompletedDate, &req.ErrorMessage, &progress, &resultFiles)
	if err != nil {
		return nil, err
	}

	req.Status = model.RequestStatus(status)
	if err := json.Unmarshal(repoIDs, &req.RepositoryIDs); err != nil {
		return nil, err
	}
	if len(progress) > 0 {
		req.Progress = &model.Progress{}
		if err := json.Unmarshal(progress, req.Progress); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(resultFiles, &req.ResultFiles); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id int64) (*model.AnalyticsRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM analytics_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ListRequests returns requests filtered by status, oldest first so polling
// approximates FIFO. An empty status returns everything.
func (s *PostgresStore) ListRequests(ctx context.Context, status model.RequestStatus) ([]model.AnalyticsRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM analytics_requests`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_date ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []model.AnalyticsRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// UpdateRequestStatus applies a status transition plus any optional fields.
// Running sets started_date only if it is not already set; terminal states
// stamp completed_date; a reset back to Requested clears both timestamps so
// the next claim starts fresh.
func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id int64, status model.RequestStatus, opts UpdateRequestOptions) error {
	if !status.Valid() {
		return fmt.Errorf("invalid request status %q", status)
	}

	set := []string{"status = $2"}
	args := []any{id, string(status)}

	switch status {
	case model.StatusRunning:
		set = append(set, "started_date = COALESCE(started_date, now())")
	case model.StatusCompleted, model.StatusFailed:
		set = append(set, "completed_date = now()")
	case model.StatusRequested:
		set = append(set, "started_date = NULL", "completed_date = NULL")
	}

	if opts.ErrorMessage != nil {
		args = append(args, *opts.ErrorMessage)
		set = append(set, fmt.Sprintf("error_message = $%d", len(args)))
	}
	if opts.Progress != nil {
		progress, err := json.Marshal(opts.Progress)
		if err != nil {
			return err
		}
		args = append(args, progress)
		set = append(set, fmt.Sprintf("progress_info = $%d", len(args)))
	}
	if opts.ResultFiles != nil {
		files, err := json.Marshal(opts.ResultFiles)
		if err != nil {
			return err
		}
		args = append(args, files)
		set = append(set, fmt.Sprintf("result_files = $%d", len(args)))
	}

	query := `UPDATE analytics_requests SET ` + strings.Join(set, ", ") + ` WHERE id = $1`
	ct, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating request %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// orEmpty keeps nil slices from marshalling as JSON null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
