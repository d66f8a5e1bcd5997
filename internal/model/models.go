// internal/model/models.go
package model

import (
	"encoding/json"
	"time"
)

// Organization is the root of the containment hierarchy. Rows are seeded from
// configuration and rarely change afterwards.
type Organization struct {
	ID          int64
	Name        string
	URL         string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Project groups repositories inside an organization.
type Project struct {
	ID             string // natural id assigned by Azure DevOps
	Name           string
	State          string
	Visibility     string
	OrganizationID int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository holds the metadata of a single Git repository.
type Repository struct {
	ID            string // natural id (repository GUID)
	Name          string
	ProjectID     string
	URL           string
	DefaultBranch string
	Size          int64
	IsFork        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChangeCounts carries the per-commit add/edit/delete file counters as
// reported by the source system.
type ChangeCounts struct {
	Added   int `json:"added"`
	Edited  int `json:"edited"`
	Deleted int `json:"deleted"`
}

// Commit is immutable once stored; re-ingestion only inserts hashes that are
// not already present.
type Commit struct {
	ID             string // content hash from the source system
	RepositoryID   string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     time.Time
	CommitterName  string
	CommitterEmail string
	CommitterDate  time.Time
	Message        string
	ChangeCounts   ChangeCounts
	Parents        []string
	URL            string
	CreatedAt      time.Time
}

// Branch is a mutable snapshot; each ingestion run replaces the full set for
// a repository.
type Branch struct {
	ID           int64
	RepositoryID string
	Name         string
	ObjectID     string
	Creator      string
	URL          string
	IsDefault    bool
	CreatedAt    time.Time
}

// Reviewer is one entry of a pull request's reviewer list.
type Reviewer struct {
	Name       string `json:"name"`
	Vote       int    `json:"vote"`
	IsRequired bool   `json:"is_required"`
}

// PullRequest is keyed by (repository, pull request number).
type PullRequest struct {
	ID            int64
	PullRequestID int // natural id, scoped to the repository
	RepositoryID  string
	Title         string
	Description   string
	SourceBranch  string
	TargetBranch  string
	Author        string
	CreatedDate   time.Time
	ClosedDate    *time.Time
	CompletedDate *time.Time
	Status        string
	MergeStatus   string
	Reviewers     []Reviewer
	URL           string
	CreatedAt     time.Time
}

// AnalyticsResult is one append-only analytics snapshot for a repository.
// Each category is stored as its own JSON document; the typed records that
// produce them live in the analytics package. Extra is a forward-compatibility
// escape hatch for categories the schema does not name.
type AnalyticsResult struct {
	ID                   int64
	RepositoryID         string
	AnalysisDate         time.Time
	CommitAnalytics      json.RawMessage
	AuthorAnalytics      json.RawMessage
	BranchAnalytics      json.RawMessage
	PullRequestAnalytics json.RawMessage
	RepositoryHealth     json.RawMessage
	Extra                json.RawMessage
	CreatedAt            time.Time
}

// RequestStatus is the lifecycle state of an analytics request.
type RequestStatus string

const (
	StatusRequested RequestStatus = "Requested"
	StatusRunning   RequestStatus = "Running"
	StatusCompleted RequestStatus = "Completed"
	StatusFailed    RequestStatus = "Failed"
)

// Valid reports whether s is one of the known request states.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is an end state.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Progress is the incremental progress info written while a request is
// Running. RepoOutcomes is filled in with the terminal update so callers can
// see which repositories failed without reading logs.
type Progress struct {
	TotalRepos     int           `json:"total_repos"`
	CompletedRepos int           `json:"completed_repos"`
	CurrentRepo    string        `json:"current_repo,omitempty"`
	RepoOutcomes   []RepoOutcome `json:"repo_outcomes,omitempty"`
}

// AnalyticsRequest is the durable unit of requested analytics work.
type AnalyticsRequest struct {
	ID            int64
	ProjectName   string
	RepositoryIDs []string
	Status        RequestStatus
	RequestedDate time.Time
	StartedDate   *time.Time
	CompletedDate *time.Time
	ErrorMessage  string
	Progress      *Progress
	ResultFiles   []string
}

// RepoOutcome records how processing of one repository inside a request
// ended. Failures here do not fail the request.
type RepoOutcome struct {
	RepositoryID   string `json:"repository_id"`
	RepositoryName string `json:"repository_name"`
	Succeeded      bool   `json:"succeeded"`
	Error          string `json:"error,omitempty"`
}
