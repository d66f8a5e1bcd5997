// internal/ingest/ingest.go
package ingest

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
)

// SourceClient is the slice of the remote API the ingestion protocol consumes.
type SourceClient interface {
	GetRepositories(ctx context.Context, project string) ([]model.Repository, error)
	GetBranches(ctx context.Context, project, repository string) ([]model.Branch, error)
	AllCommits(ctx context.Context, project, repository, branch string) iter.Seq2[model.Commit, error]
	AllPullRequests(ctx context.Context, project, repository string) iter.Seq2[model.PullRequest, error]
}

// Stats summarizes one ingestion run for a repository.
type Stats struct {
	CommitsSeen     int64
	NewCommits      int64
	Branches        int64
	PullRequests    int64
	NewPullRequests int64
}

// Ingestor pulls commits, branches and pull requests for a repository and
// merges them into the store without duplication.
type Ingestor struct {
	client    SourceClient
	store     store.Store
	logger    *slog.Logger
	batchSize int
}

// NewIngestor creates an Ingestor. batchSize controls how many commits are
// buffered before each store write; values <= 0 default to 100.
func NewIngestor(client SourceClient, st store.Store, logger *slog.Logger, batchSize int) *Ingestor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Ingestor{
		client:    client,
		store:     st,
		logger:    logger,
		batchSize: batchSize,
	}
}

// DiscoverRepositories fetches the repository list for a project from the
// remote API and upserts each repository row.
func (i *Ingestor) DiscoverRepositories(ctx context.Context, projectName, projectID string) ([]model.Repository, error) {
	repos, err := i.client.GetRepositories(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("fetching repositories for project %q: %w", projectName, err)
	}

	for idx := range repos {
		if repos[idx].ProjectID == "" {
			repos[idx].ProjectID = projectID
		}
		if err := i.store.UpsertRepository(ctx, repos[idx]); err != nil {
			return nil, err
		}
	}

	i.logger.Info("Discovered repositories", "project", projectName, "count", len(repos))
	return repos, nil
}

// IngestRepository merges all remote data for one repository into the store.
// Branch and pull request collection run concurrently with commit paging;
// branch and pull request writes happen after every fetch has finished, so
// a fetch failure leaves their stored state untouched.
func (i *Ingestor) IngestRepository(ctx context.Context, projectName string, repo model.Repository) (Stats, error) {
	logger := i.logger.With("project", projectName, "repo", repo.Name)
	logger.Info("Ingesting repository")

	var stats Stats

	if err := i.store.UpsertRepository(ctx, repo); err != nil {
		return stats, err
	}

	var branches []model.Branch
	var prs []model.PullRequest

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fetched, err := i.client.GetBranches(gctx, projectName, repo.Name)
		if err != nil {
			return fmt.Errorf("fetching branches: %w", err)
		}
		branches = fetched
		return nil
	})

	g.Go(func() error {
		for pr, err := range i.client.AllPullRequests(gctx, projectName, repo.Name) {
			if err != nil {
				return fmt.Errorf("fetching pull requests: %w", err)
			}
			prs = append(prs, pr)
		}
		return nil
	})

	g.Go(func() error {
		batch := make([]model.Commit, 0, i.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			n, err := i.store.SaveCommits(gctx, repo.ID, batch)
			if err != nil {
				return fmt.Errorf("storing commits: %w", err)
			}
			stats.NewCommits += n
			batch = batch[:0]
			return nil
		}

		for commit, err := range i.client.AllCommits(gctx, projectName, repo.Name, "") {
			if err != nil {
				return fmt.Errorf("fetching commits: %w", err)
			}
			stats.CommitsSeen++
			batch = append(batch, commit)
			if len(batch) >= i.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}

	if err := i.store.ReplaceBranches(ctx, repo.ID, markDefault(branches, repo.DefaultBranch)); err != nil {
		return stats, fmt.Errorf("storing branches: %w", err)
	}
	stats.Branches = int64(len(branches))

	newPRs, err := i.store.SavePullRequests(ctx, repo.ID, prs)
	if err != nil {
		return stats, fmt.Errorf("storing pull requests: %w", err)
	}
	stats.PullRequests = int64(len(prs))
	stats.NewPullRequests = newPRs

	logger.Info("Ingestion finished",
		"commits_seen", stats.CommitsSeen, "new_commits", stats.NewCommits,
		"branches", stats.Branches, "new_pull_requests", stats.NewPullRequests)
	return stats, nil
}

// markDefault flags the branch matching the repository's default ref.
func markDefault(branches []model.Branch, defaultRef string) []model.Branch {
	name := strings.TrimPrefix(defaultRef, "refs/heads/")
	for idx := range branches {
		branches[idx].IsDefault = branches[idx].Name == name
	}
	return branches
}
