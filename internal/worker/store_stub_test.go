// internal/worker/store_stub_test.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "git-analytics-service/internal/errors"
	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
)

// transition records one UpdateRequestStatus call for later assertions.
type transition struct {
	id     int64
	status model.RequestStatus
	opts   store.UpdateRequestOptions
}

// stubStore is an in-memory request queue with the same transition semantics
// as the Postgres store: Running stamps started_date once, terminal states
// stamp completed_date, Requested clears both.
type stubStore struct {
	mu          sync.Mutex
	requests    map[int64]*model.AnalyticsRequest
	repos       map[string]model.Repository
	brokenRepos map[string]error
	transitions []transition
	listErr     error
	cleanups    int
	nextID      int64
}

var _ store.Store = (*stubStore)(nil)

func newStubStore() *stubStore {
	return &stubStore{
		requests:    map[int64]*model.AnalyticsRequest{},
		repos:       map[string]model.Repository{},
		brokenRepos: map[string]error{},
	}
}

func (s *stubStore) addRepo(repo model.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[repo.ID] = repo
}

func (s *stubStore) addRequest(req model.AnalyticsRequest) model.AnalyticsRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	req.ID = s.nextID
	if req.Status == "" {
		req.Status = model.StatusRequested
	}
	if req.RequestedDate.IsZero() {
		req.RequestedDate = time.Now().UTC().Add(time.Duration(s.nextID) * time.Millisecond)
	}
	copied := req
	s.requests[req.ID] = &copied
	return req
}

func (s *stubStore) request(id int64) model.AnalyticsRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.requests[id]
}

func (s *stubStore) recorded() []transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transition, len(s.transitions))
	copy(out, s.transitions)
	return out
}

func (s *stubStore) UpsertOrganization(_ context.Context, org model.Organization) (model.Organization, error) {
	return org, nil
}

func (s *stubStore) UpsertProject(context.Context, model.Project) error { return nil }

func (s *stubStore) UpsertRepository(_ context.Context, repo model.Repository) error {
	s.addRepo(repo)
	return nil
}

func (s *stubStore) GetRepository(_ context.Context, id string) (*model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.brokenRepos[id]; ok {
		return nil, err
	}
	repo, ok := s.repos[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &repo, nil
}

func (s *stubStore) ListRepositories(context.Context) ([]model.Repository, error) { return nil, nil }

func (s *stubStore) ListRepositoriesByProject(context.Context, string) ([]model.Repository, error) {
	return nil, nil
}

func (s *stubStore) SaveCommits(context.Context, string, []model.Commit) (int64, error) {
	return 0, nil
}

func (s *stubStore) ReplaceBranches(context.Context, string, []model.Branch) error { return nil }

func (s *stubStore) SavePullRequests(context.Context, string, []model.PullRequest) (int64, error) {
	return 0, nil
}

func (s *stubStore) ListCommits(context.Context, string, int) ([]model.Commit, error) {
	return nil, nil
}

func (s *stubStore) CommitCount(context.Context, string) (int64, error) { return 0, nil }

func (s *stubStore) ListBranches(context.Context, string) ([]model.Branch, error) { return nil, nil }

func (s *stubStore) ListPullRequests(context.Context, string) ([]model.PullRequest, error) {
	return nil, nil
}

func (s *stubStore) SaveAnalyticsResult(context.Context, *model.AnalyticsResult) error { return nil }

func (s *stubStore) LatestAnalyticsResult(context.Context, string) (*model.AnalyticsResult, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubStore) CleanupOldResults(context.Context, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return 0, nil
}

func (s *stubStore) CreateRequest(_ context.Context, projectName string, repositoryIDs []string) (*model.AnalyticsRequest, error) {
	req := s.addRequest(model.AnalyticsRequest{
		ProjectName:   projectName,
		RepositoryIDs: repositoryIDs,
	})
	return &req, nil
}

func (s *stubStore) GetRequest(_ context.Context, id int64) (*model.AnalyticsRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *req
	return &copied, nil
}

func (s *stubStore) ListRequests(_ context.Context, status model.RequestStatus) ([]model.AnalyticsRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []model.AnalyticsRequest
	for _, req := range s.requests {
		if status == "" || req.Status == status {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedDate.Before(out[j].RequestedDate) })
	return out, nil
}

func (s *stubStore) UpdateRequestStatus(_ context.Context, id int64, status model.RequestStatus, opts store.UpdateRequestOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !status.Valid() {
		return fmt.Errorf("invalid request status %q", status)
	}
	req, ok := s.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}

	now := time.Now().UTC()
	req.Status = status
	switch status {
	case model.StatusRunning:
		if req.StartedDate == nil {
			req.StartedDate = &now
		}
	case model.StatusCompleted, model.StatusFailed:
		req.CompletedDate = &now
	case model.StatusRequested:
		req.StartedDate = nil
		req.CompletedDate = nil
	}

	if opts.ErrorMessage != nil {
		req.ErrorMessage = *opts.ErrorMessage
	}
	if opts.Progress != nil {
		copied := *opts.Progress
		req.Progress = &copied
	}
	if opts.ResultFiles != nil {
		// Keep an empty slice distinct from nil, like the JSONB column does.
		req.ResultFiles = append(make([]string, 0, len(opts.ResultFiles)), opts.ResultFiles...)
	}

	s.transitions = append(s.transitions, transition{id: id, status: status, opts: opts})
	return nil
}

var errStoreDown = errors.New("store unavailable")
