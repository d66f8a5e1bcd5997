// internal/api/respond.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"git-analytics-service/internal/model"
)

type requestResponse struct {
	ID            int64           `json:"id"`
	ProjectName   string          `json:"project_name"`
	RepositoryIDs []string        `json:"repository_ids"`
	Status        string          `json:"status"`
	RequestedDate time.Time       `json:"requested_date"`
	StartedDate   *time.Time      `json:"started_date,omitempty"`
	CompletedDate *time.Time      `json:"completed_date,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Progress      *model.Progress `json:"progress_info,omitempty"`
	ResultFiles   []string        `json:"result_files"`
}

func toRequestResponse(req *model.AnalyticsRequest) requestResponse {
	files := req.ResultFiles
	if files == nil {
		files = []string{}
	}
	return requestResponse{
		ID:            req.ID,
		ProjectName:   req.ProjectName,
		RepositoryIDs: req.RepositoryIDs,
		Status:        string(req.Status),
		RequestedDate: req.RequestedDate,
		StartedDate:   req.StartedDate,
		CompletedDate: req.CompletedDate,
		ErrorMessage:  req.ErrorMessage,
		Progress:      req.Progress,
		ResultFiles:   files,
	}
}

type resultResponse struct {
	ID                   int64           `json:"id"`
	RepositoryID         string          `json:"repository_id"`
	AnalysisDate         time.Time       `json:"analysis_date"`
	CommitAnalytics      json.RawMessage `json:"commit_analytics,omitempty"`
	AuthorAnalytics      json.RawMessage `json:"author_analytics,omitempty"`
	BranchAnalytics      json.RawMessage `json:"branch_analytics,omitempty"`
	PullRequestAnalytics json.RawMessage `json:"pull_request_analytics,omitempty"`
	RepositoryHealth     json.RawMessage `json:"repository_health,omitempty"`
	Extra                json.RawMessage `json:"extra,omitempty"`
}

func toResultResponse(res *model.AnalyticsResult) resultResponse {
	return resultResponse{
		ID:                   res.ID,
		RepositoryID:         res.RepositoryID,
		AnalysisDate:         res.AnalysisDate,
		CommitAnalytics:      res.CommitAnalytics,
		AuthorAnalytics:      res.AuthorAnalytics,
		BranchAnalytics:      res.BranchAnalytics,
		PullRequestAnalytics: res.PullRequestAnalytics,
		RepositoryHealth:     res.RepositoryHealth,
		Extra:                res.Extra,
	}
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}
