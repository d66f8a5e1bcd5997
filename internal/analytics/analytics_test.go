// internal/analytics/analytics_test.go
package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git-analytics-service/internal/model"
)

func commitAt(id, author string, date time.Time, parents ...string) model.Commit {
	return model.Commit{
		ID:         id,
		AuthorName: author,
		AuthorDate: date,
		Message:    "change " + id,
		Parents:    parents,
		ChangeCounts: model.ChangeCounts{
			Added: 2, Edited: 1, Deleted: 1,
		},
	}
}

func TestAnalyzeCommits(t *testing.T) {
	base := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC) // a Monday

	commits := []model.Commit{
		commitAt("c1", "alice", base, "p1"),
		commitAt("c2", "alice", base.Add(24*time.Hour), "p1"),
		commitAt("c3", "bob", base.Add(48*time.Hour), "p1", "p2"), // merge commit
		commitAt("c4", "bob", base.Add(-24*time.Hour), "p1"),
	}

	ca := analyzeCommits(commits)

	assert.Equal(t, 4, ca.TotalCommits)
	assert.Equal(t, 8, ca.TotalAdditions)
	assert.Equal(t, 4, ca.TotalEdits)
	assert.Equal(t, 4, ca.TotalDeletions)
	assert.Equal(t, 1, ca.MergeCommits)
	assert.InDelta(t, 0.25, ca.MergeRatio, 1e-9)

	require.NotNil(t, ca.FirstCommitDate)
	require.NotNil(t, ca.LastCommitDate)
	assert.Equal(t, base.Add(-24*time.Hour), *ca.FirstCommitDate)
	assert.Equal(t, base.Add(48*time.Hour), *ca.LastCommitDate)

	assert.Equal(t, 1, ca.CommitsByWeekday["Sunday"])
	assert.Equal(t, 1, ca.CommitsByWeekday["Monday"])
	assert.Equal(t, 4, ca.CommitsByHour[14])
	assert.Equal(t, 4, ca.CommitsByMonth["2025-03"])
}

func TestAnalyzeCommitsEmpty(t *testing.T) {
	ca := analyzeCommits(nil)

	assert.Equal(t, 0, ca.TotalCommits)
	assert.Zero(t, ca.MergeRatio)
	assert.Nil(t, ca.FirstCommitDate)
	assert.Nil(t, ca.LastCommitDate)
	assert.NotNil(t, ca.CommitsByWeekday)
}

func TestAnalyzeAuthorsBusFactor(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	// alice: 6 commits, bob: 3, carol: 1. alice alone covers 50%,
	// alice+bob cover 80%.
	var commits []model.Commit
	for i := 0; i < 6; i++ {
		commits = append(commits, commitAt("a"+string(rune('0'+i)), "alice", base.Add(time.Duration(i)*time.Hour)))
	}
	for i := 0; i < 3; i++ {
		commits = append(commits, commitAt("b"+string(rune('0'+i)), "bob", base))
	}
	commits = append(commits, commitAt("c0", "carol", base))

	aa := analyzeAuthors(commits)

	assert.Equal(t, 3, aa.TotalAuthors)
	require.Len(t, aa.Authors, 3)
	assert.Equal(t, "alice", aa.Authors[0].Name)
	assert.Equal(t, 6, aa.Authors[0].Commits)
	assert.Equal(t, 24, aa.Authors[0].TotalChanges)
	assert.Equal(t, 1, aa.BusFactor50)
	assert.Equal(t, 2, aa.BusFactor80)

	require.NotNil(t, aa.Authors[0].FirstCommit)
	require.NotNil(t, aa.Authors[0].LastCommit)
	assert.Equal(t, base, *aa.Authors[0].FirstCommit)
	assert.Equal(t, base.Add(5*time.Hour), *aa.Authors[0].LastCommit)
}

func TestAnalyzeAuthorsSingleAuthor(t *testing.T) {
	base := time.Now().UTC()
	commits := []model.Commit{
		commitAt("c1", "solo", base),
		commitAt("c2", "solo", base),
	}

	aa := analyzeAuthors(commits)

	assert.Equal(t, 1, aa.TotalAuthors)
	assert.Equal(t, 1, aa.BusFactor50)
	assert.Equal(t, 1, aa.BusFactor80)
}

func TestAnalyzeAuthorsEmpty(t *testing.T) {
	aa := analyzeAuthors(nil)

	assert.Equal(t, 0, aa.TotalAuthors)
	assert.NotNil(t, aa.Authors)
	assert.Empty(t, aa.Authors)
}

func TestAnalyzeBranches(t *testing.T) {
	branches := []model.Branch{
		{Name: "main", IsDefault: true},
		{Name: "develop"},
		{Name: "feature/x"},
	}

	ba := analyzeBranches(branches)

	assert.Equal(t, 3, ba.TotalBranches)
	assert.Equal(t, "main", ba.DefaultBranch)
	assert.Equal(t, []string{"develop", "feature/x", "main"}, ba.BranchNames)
}

func TestAnalyzePullRequests(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	closedAfter12h := created.Add(12 * time.Hour)
	closedAfter36h := created.Add(36 * time.Hour)

	prs := []model.PullRequest{
		{Status: "completed", CreatedDate: created, ClosedDate: &closedAfter12h,
			Reviewers: []model.Reviewer{{Name: "r1"}, {Name: "r2"}}},
		{Status: "completed", CreatedDate: created, ClosedDate: &closedAfter36h,
			Reviewers: []model.Reviewer{{Name: "r1"}}},
		{Status: "active", CreatedDate: created},
		{Status: "abandoned", CreatedDate: created},
	}

	pa := analyzePullRequests(prs)

	assert.Equal(t, 4, pa.TotalPullRequests)
	assert.Equal(t, 2, pa.ByStatus["completed"])
	assert.Equal(t, 1, pa.ByStatus["active"])
	assert.InDelta(t, 24.0, pa.AvgTimeToCloseHrs, 1e-9)
	assert.InDelta(t, 0.75, pa.AvgReviewers, 1e-9)
}

func TestAnalyzePullRequestsEmpty(t *testing.T) {
	pa := analyzePullRequests(nil)

	assert.Equal(t, 0, pa.TotalPullRequests)
	assert.Zero(t, pa.AvgTimeToCloseHrs)
	assert.Zero(t, pa.AvgReviewers)
}

func TestAnalyzeHealth(t *testing.T) {
	now := time.Now().UTC()
	commits := []model.Commit{
		commitAt("recent1", "alice", now.Add(-24*time.Hour)),
		commitAt("recent2", "alice", now.Add(-72*time.Hour)),
		commitAt("old", "alice", now.AddDate(0, 0, -60)),
	}
	branches := []model.Branch{{Name: "main"}, {Name: "dev"}}
	prs := []model.PullRequest{
		{Status: "active"},
		{Status: "completed"},
	}

	h := analyzeHealth(commits, branches, prs)

	assert.Equal(t, 2, h.CommitsLast30Days)
	assert.Equal(t, 2, h.ActiveBranches)
	assert.Equal(t, 1, h.OpenPullRequests)
	assert.Greater(t, h.ActivityScore, 0.0)
	assert.LessOrEqual(t, h.ActivityScore, 1.0)
}

func TestResultToModel(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := model.Repository{ID: "repo-1", Name: "svc", DefaultBranch: "refs/heads/main"}
	commits := []model.Commit{commitAt("c1", "alice", base)}
	branches := []model.Branch{{Name: "main", IsDefault: true}}

	result := Analyze(repo, commits, branches, nil)

	row, err := result.ToModel(repo.ID, base)
	require.NoError(t, err)

	assert.Equal(t, "repo-1", row.RepositoryID)
	assert.Equal(t, base, row.AnalysisDate)
	assert.NotEmpty(t, row.CommitAnalytics)
	assert.NotEmpty(t, row.AuthorAnalytics)
	assert.NotEmpty(t, row.BranchAnalytics)
	assert.NotEmpty(t, row.PullRequestAnalytics)
	assert.NotEmpty(t, row.RepositoryHealth)
	assert.Empty(t, row.Extra)
}
