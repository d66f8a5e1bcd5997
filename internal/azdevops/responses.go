// internal/azdevops/responses.go
package azdevops

import (
	"strings"
	"time"

	"git-analytics-service/internal/model"
)

// listResponse is the envelope Azure DevOps wraps around collection results.
type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

type projectResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Visibility string `json:"visibility"`
}

func (p projectResponse) toModel() *model.Project {
	return &model.Project{
		ID:         p.ID,
		Name:       p.Name,
		State:      p.State,
		Visibility: p.Visibility,
	}
}

type repositoryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WebURL        string `json:"webUrl"`
	DefaultBranch string `json:"defaultBranch"`
	Size          int64  `json:"size"`
	IsFork        bool   `json:"isFork"`
	Project       struct {
		ID string `json:"id"`
	} `json:"project"`
}

func (r repositoryResponse) toModel() model.Repository {
	defaultBranch := r.DefaultBranch
	if defaultBranch == "" {
		defaultBranch = "refs/heads/main"
	}
	return model.Repository{
		ID:            r.ID,
		Name:          r.Name,
		ProjectID:     r.Project.ID,
		URL:           r.WebURL,
		DefaultBranch: defaultBranch,
		Size:          r.Size,
		IsFork:        r.IsFork,
	}
}

type gitUser struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Date  time.Time `json:"date"`
}

type commitResponse struct {
	CommitID     string  `json:"commitId"`
	Author       gitUser `json:"author"`
	Committer    gitUser `json:"committer"`
	Comment      string  `json:"comment"`
	ChangeCounts struct {
		Add    int `json:"Add"`
		Edit   int `json:"Edit"`
		Delete int `json:"Delete"`
	} `json:"changeCounts"`
	Parents []string `json:"parents"`
	URL     string   `json:"url"`
}

func (c commitResponse) toModel() model.Commit {
	return model.Commit{
		ID:             c.CommitID,
		AuthorName:     c.Author.Name,
		AuthorEmail:    c.Author.Email,
		AuthorDate:     c.Author.Date,
		CommitterName:  c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		CommitterDate:  c.Committer.Date,
		Message:        c.Comment,
		ChangeCounts: model.ChangeCounts{
			Added:   c.ChangeCounts.Add,
			Edited:  c.ChangeCounts.Edit,
			Deleted: c.ChangeCounts.Delete,
		},
		Parents: c.Parents,
		URL:     c.URL,
	}
}

type refResponse struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
	Creator  struct {
		DisplayName string `json:"displayName"`
	} `json:"creator"`
	URL string `json:"url"`
}

func (r refResponse) toModel() model.Branch {
	return model.Branch{
		Name:     strings.TrimPrefix(r.Name, "refs/heads/"),
		ObjectID: r.ObjectID,
		Creator:  r.Creator.DisplayName,
		URL:      r.URL,
	}
}

type identityRef struct {
	DisplayName string `json:"displayName"`
}

type pullRequestResponse struct {
	PullRequestID int        `json:"pullRequestId"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	SourceRefName string     `json:"sourceRefName"`
	TargetRefName string     `json:"targetRefName"`
	CreatedBy     identityRef `json:"createdBy"`
	CreationDate  time.Time  `json:"creationDate"`
	ClosedDate    *time.Time `json:"closedDate"`
	CompletedDate *time.Time `json:"completionQueueTime"`
	Status        string     `json:"status"`
	MergeStatus   string     `json:"mergeStatus"`
	Reviewers     []struct {
		DisplayName string `json:"displayName"`
		Vote        int    `json:"vote"`
		IsRequired  bool   `json:"isRequired"`
	} `json:"reviewers"`
	URL string `json:"url"`
}

func (pr pullRequestResponse) toModel() model.PullRequest {
	reviewers := make([]model.Reviewer, 0, len(pr.Reviewers))
	for _, r := range pr.Reviewers {
		reviewers = append(reviewers, model.Reviewer{
			Name:       r.DisplayName,
			Vote:       r.Vote,
			IsRequired: r.IsRequired,
		})
	}
	return model.PullRequest{
		PullRequestID: pr.PullRequestID,
		Title:         pr.Title,
		Description:   pr.Description,
		SourceBranch:  pr.SourceRefName,
		TargetBranch:  pr.TargetRefName,
		Author:        pr.CreatedBy.DisplayName,
		CreatedDate:   pr.CreationDate,
		ClosedDate:    pr.ClosedDate,
		CompletedDate: pr.CompletedDate,
		Status:        pr.Status,
		MergeStatus:   pr.MergeStatus,
		Reviewers:     reviewers,
		URL:           pr.URL,
	}
}
