// internal/azdevops/pager.go
package azdevops

import (
	"context"
	"iter"

	"git-analytics-service/internal/model"
)

// AllCommits returns a lazy sequence over every commit in the repository.
// Pages are fetched with offset/limit as the consumer advances; a page
// shorter than the batch size ends the sequence. The sequence restarts from
// scratch if iterated again.
func (c *Client) AllCommits(ctx context.Context, project, repository, branch string) iter.Seq2[model.Commit, error] {
	return func(yield func(model.Commit, error) bool) {
		skip := 0
		for {
			commits, err := c.GetCommits(ctx, project, repository, branch, c.batchSize, skip)
			if err != nil {
				yield(model.Commit{}, err)
				return
			}
			for _, commit := range commits {
				if !yield(commit, nil) {
					return
				}
			}
			if len(commits) < c.batchSize {
				return
			}
			skip += c.batchSize
		}
	}
}

// AllPullRequests returns a lazy sequence over every pull request in the
// repository, regardless of status. Same pagination contract as AllCommits.
func (c *Client) AllPullRequests(ctx context.Context, project, repository string) iter.Seq2[model.PullRequest, error] {
	return func(yield func(model.PullRequest, error) bool) {
		skip := 0
		for {
			prs, err := c.GetPullRequests(ctx, project, repository, "all", c.batchSize, skip)
			if err != nil {
				yield(model.PullRequest{}, err)
				return
			}
			for _, pr := range prs {
				if !yield(pr, nil) {
					return
				}
			}
			if len(prs) < c.batchSize {
				return
			}
			skip += c.batchSize
		}
	}
}
