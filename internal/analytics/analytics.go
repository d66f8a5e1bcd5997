// internal/analytics/analytics.go

// Package analytics computes descriptive statistics over already-fetched
// repository data. Everything here is a pure function of its inputs; results
// are serialized per category into the analytics result store.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"git-analytics-service/internal/model"
)

// CommitAnalytics summarizes commit activity for one repository.
type CommitAnalytics struct {
	TotalCommits     int            `json:"total_commits"`
	TotalAdditions   int            `json:"total_additions"`
	TotalEdits       int            `json:"total_edits"`
	TotalDeletions   int            `json:"total_deletions"`
	MergeCommits     int            `json:"merge_commits"`
	MergeRatio       float64        `json:"merge_ratio"`
	AvgMessageLength float64        `json:"average_message_length"`
	CommitsByWeekday map[string]int `json:"commits_by_day_of_week"`
	CommitsByHour    map[int]int    `json:"commits_by_hour"`
	CommitsByMonth   map[string]int `json:"commits_by_month"`
	FirstCommitDate  *time.Time     `json:"first_commit_date,omitempty"`
	LastCommitDate   *time.Time     `json:"last_commit_date,omitempty"`
}

// AuthorStats is the per-author contribution record.
type AuthorStats struct {
	Name         string     `json:"name"`
	Commits      int        `json:"commits"`
	Additions    int        `json:"additions"`
	Edits        int        `json:"edits"`
	Deletions    int        `json:"deletions"`
	TotalChanges int        `json:"total_changes"`
	FirstCommit  *time.Time `json:"first_commit,omitempty"`
	LastCommit   *time.Time `json:"last_commit,omitempty"`
}

// AuthorAnalytics includes the bus factor: how many authors account for 50%
// and 80% of all commits.
type AuthorAnalytics struct {
	TotalAuthors int           `json:"total_authors"`
	Authors      []AuthorStats `json:"authors"`
	BusFactor50  int           `json:"bus_factor_50"`
	BusFactor80  int           `json:"bus_factor_80"`
}

// BranchAnalytics summarizes the current branch snapshot.
type BranchAnalytics struct {
	TotalBranches int      `json:"total_branches"`
	DefaultBranch string   `json:"default_branch,omitempty"`
	BranchNames   []string `json:"branch_names"`
}

// PullRequestAnalytics summarizes pull request lifecycle data.
type PullRequestAnalytics struct {
	TotalPullRequests int            `json:"total_pull_requests"`
	ByStatus          map[string]int `json:"by_status"`
	AvgTimeToCloseHrs float64        `json:"average_time_to_close_hours"`
	AvgReviewers      float64        `json:"average_reviewers"`
}

// RepositoryHealth is a coarse activity indicator.
type RepositoryHealth struct {
	CommitsLast30Days int     `json:"commits_last_30_days"`
	ActiveBranches    int     `json:"active_branches"`
	OpenPullRequests  int     `json:"open_pull_requests"`
	ActivityScore     float64 `json:"activity_score"`
}

// Result bundles the typed analytics categories for one repository.
type Result struct {
	CommitAnalytics      CommitAnalytics
	AuthorAnalytics      AuthorAnalytics
	BranchAnalytics      BranchAnalytics
	PullRequestAnalytics PullRequestAnalytics
	RepositoryHealth     RepositoryHealth
}

// Analyze computes every category from the given repository data.
func Analyze(repo model.Repository, commits []model.Commit, branches []model.Branch, prs []model.PullRequest) Result {
	return Result{
		CommitAnalytics:      analyzeCommits(commits),
		AuthorAnalytics:      analyzeAuthors(commits),
		BranchAnalytics:      analyzeBranches(branches),
		PullRequestAnalytics: analyzePullRequests(prs),
		RepositoryHealth:     analyzeHealth(commits, branches, prs),
	}
}

// ToModel serializes each category to JSON for the result store.
func (r Result) ToModel(repositoryID string, analysisDate time.Time) (*model.AnalyticsResult, error) {
	out := &model.AnalyticsResult{
		RepositoryID: repositoryID,
		AnalysisDate: analysisDate,
	}

	for _, field := range []struct {
		name string
		src  any
		dst  *json.RawMessage
	}{
		{"commit_analytics", r.CommitAnalytics, &out.CommitAnalytics},
		{"author_analytics", r.AuthorAnalytics, &out.AuthorAnalytics},
		{"branch_analytics", r.BranchAnalytics, &out.BranchAnalytics},
		{"pull_request_analytics", r.PullRequestAnalytics, &out.PullRequestAnalytics},
		{"repository_health", r.RepositoryHealth, &out.RepositoryHealth},
	} {
		raw, err := json.Marshal(field.src)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s: %w", field.name, err)
		}
		*field.dst = raw
	}
	return out, nil
}

func analyzeCommits(commits []model.Commit) CommitAnalytics {
	ca := CommitAnalytics{
		CommitsByWeekday: map[string]int{},
		CommitsByHour:    map[int]int{},
		CommitsByMonth:   map[string]int{},
	}
	if len(commits) == 0 {
		return ca
	}

	ca.TotalCommits = len(commits)
	var messageLen int
	first, last := commits[0].AuthorDate, commits[0].AuthorDate

	for _, c := range commits {
		ca.TotalAdditions += c.ChangeCounts.Added
		ca.TotalEdits += c.ChangeCounts.Edited
		ca.TotalDeletions += c.ChangeCounts.Deleted
		messageLen += len(c.Message)

		if len(c.Parents) > 1 {
			ca.MergeCommits++
		}

		ca.CommitsByWeekday[c.AuthorDate.Weekday().String()]++
		ca.CommitsByHour[c.AuthorDate.Hour()]++
		ca.CommitsByMonth[c.AuthorDate.Format("2006-01")]++

		if c.AuthorDate.Before(first) {
			first = c.AuthorDate
		}
		if c.AuthorDate.After(last) {
			last = c.AuthorDate
		}
	}

	ca.MergeRatio = float64(ca.MergeCommits) / float64(ca.TotalCommits)
	ca.AvgMessageLength = float64(messageLen) / float64(ca.TotalCommits)
	ca.FirstCommitDate = &first
	ca.LastCommitDate = &last
	return ca
}

func analyzeAuthors(commits []model.Commit) AuthorAnalytics {
	if len(commits) == 0 {
		return AuthorAnalytics{Authors: []AuthorStats{}}
	}

	byName := map[string]*AuthorStats{}
	for _, c := range commits {
		st, ok := byName[c.AuthorName]
		if !ok {
			st = &AuthorStats{Name: c.AuthorName}
			byName[c.AuthorName] = st
		}
		st.Commits++
		st.Additions += c.ChangeCounts.Added
		st.Edits += c.ChangeCounts.Edited
		st.Deletions += c.ChangeCounts.Deleted

		d := c.AuthorDate
		if st.FirstCommit == nil || d.Before(*st.FirstCommit) {
			st.FirstCommit = &d
		}
		if st.LastCommit == nil || d.After(*st.LastCommit) {
			st.LastCommit = &d
		}
	}

	authors := make([]AuthorStats, 0, len(byName))
	for _, st := range byName {
		st.TotalChanges = st.Additions + st.Edits + st.Deletions
		authors = append(authors, *st)
	}
	sort.Slice(authors, func(i, j int) bool {
		if authors[i].Commits != authors[j].Commits {
			return authors[i].Commits > authors[j].Commits
		}
		return authors[i].Name < authors[j].Name
	})

	total := len(commits)
	cumulative := 0
	aa := AuthorAnalytics{TotalAuthors: len(authors), Authors: authors}
	for idx, st := range authors {
		cumulative += st.Commits
		if aa.BusFactor50 == 0 && cumulative*2 >= total {
			aa.BusFactor50 = idx + 1
		}
		if aa.BusFactor80 == 0 && cumulative*5 >= total*4 {
			aa.BusFactor80 = idx + 1
			break
		}
	}
	return aa
}

func analyzeBranches(branches []model.Branch) BranchAnalytics {
	ba := BranchAnalytics{
		TotalBranches: len(branches),
		BranchNames:   make([]string, 0, len(branches)),
	}
	for _, b := range branches {
		ba.BranchNames = append(ba.BranchNames, b.Name)
		if b.IsDefault {
			ba.DefaultBranch = b.Name
		}
	}
	sort.Strings(ba.BranchNames)
	return ba
}

func analyzePullRequests(prs []model.PullRequest) PullRequestAnalytics {
	pa := PullRequestAnalytics{
		TotalPullRequests: len(prs),
		ByStatus:          map[string]int{},
	}
	if len(prs) == 0 {
		return pa
	}

	var closed int
	var closeHours float64
	var reviewers int
	for _, pr := range prs {
		pa.ByStatus[pr.Status]++
		reviewers += len(pr.Reviewers)
		if pr.ClosedDate != nil {
			closed++
			closeHours += pr.ClosedDate.Sub(pr.CreatedDate).Hours()
		}
	}
	if closed > 0 {
		pa.AvgTimeToCloseHrs = closeHours / float64(closed)
	}
	pa.AvgReviewers = float64(reviewers) / float64(len(prs))
	return pa
}

func analyzeHealth(commits []model.Commit, branches []model.Branch, prs []model.PullRequest) RepositoryHealth {
	h := RepositoryHealth{ActiveBranches: len(branches)}
	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	for _, c := range commits {
		if c.AuthorDate.After(cutoff) {
			h.CommitsLast30Days++
		}
	}
	for _, pr := range prs {
		if pr.Status == "active" {
			h.OpenPullRequests++
		}
	}

	// Bounded blend of recent commit volume and open review activity.
	score := float64(h.CommitsLast30Days)/30.0 + float64(h.OpenPullRequests)/10.0
	if score > 1 {
		score = 1
	}
	h.ActivityScore = score
	return h
}
