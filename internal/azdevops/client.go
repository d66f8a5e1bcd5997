// internal/azdevops/client.go
package azdevops

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "git-analytics-service/internal/errors"
	"git-analytics-service/internal/model"
)

const apiVersion = "6.0"

// Options tunes client behavior. Zero values fall back to sane defaults.
type Options struct {
	Timeout        time.Duration
	RetryAttempts  int
	RateLimitDelay time.Duration
	BatchSize      int
}

// Client talks to the Azure DevOps REST API. It retries transient failures
// with exponential backoff, handles 429 with a fixed pacing delay and paces
// successful calls so a long ingestion does not hammer the API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	authHeader     string
	logger         *slog.Logger
	retryAttempts  int
	rateLimitDelay time.Duration
	batchSize      int
}

// NewClient creates and configures a new Client instance. baseURL is the
// organization URL, e.g. https://dev.azure.com/my-org.
func NewClient(baseURL, pat string, logger *slog.Logger, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryAttempts := opts.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 3
	}
	rateLimitDelay := opts.RateLimitDelay
	if rateLimitDelay <= 0 {
		rateLimitDelay = time.Second
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	auth := base64.StdEncoding.EncodeToString([]byte(":" + pat))

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		authHeader:     "Basic " + auth,
		logger:         logger,
		retryAttempts:  retryAttempts,
		rateLimitDelay: rateLimitDelay,
		batchSize:      batchSize,
	}
}

// doRequest performs an authenticated GET with the retry policy:
//   - 429 always retries after RateLimitDelay * attempt number
//   - transport errors and 5xx retry with exponential backoff
//   - other non-2xx statuses fail immediately
//
// Every attempt, including rate-limit pauses, consumes one slot of the
// configured attempt budget.
func (c *Client) doRequest(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	reqURL := rawURL
	if len(params) > 0 {
		reqURL = rawURL + "?" + params.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		body, err := c.get(ctx, reqURL)
		if err == nil {
			// Pace successful calls.
			if err := sleepCtx(ctx, c.rateLimitDelay); err != nil {
				return nil, err
			}
			return body, nil
		}

		var httpErr *apperrors.ErrHTTPStatus
		switch {
		case apperrors.IsRateLimited(err):
			lastErr = err
			c.logger.Warn("Rate limited by Azure DevOps API", "url", rawURL, "attempt", attempt)
			if attempt == c.retryAttempts {
				break
			}
			if err := sleepCtx(ctx, c.rateLimitDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		case errors.As(err, &httpErr) && httpErr.StatusCode < 500:
			// Client errors other than 429 are not retryable.
			return nil, err
		default:
			lastErr = err
			c.logger.Warn("Request attempt failed", "url", rawURL, "attempt", attempt, "error", err)
			if attempt == c.retryAttempts {
				break
			}
			if err := sleepCtx(ctx, bo.NextBackOff()); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retryAttempts, lastErr)
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		io.Copy(io.Discard, resp.Body)
		return nil, &apperrors.ErrRateLimited{RetryAfter: retryAfter}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &apperrors.ErrHTTPStatus{StatusCode: resp.StatusCode, URL: reqURL}
	}

	return io.ReadAll(resp.Body)
}

// GetProject fetches project metadata by name.
func (c *Client) GetProject(ctx context.Context, project string) (*model.Project, error) {
	u := fmt.Sprintf("%s/_apis/projects/%s", c.baseURL, url.PathEscape(project))
	params := url.Values{"api-version": {apiVersion}}

	body, err := c.doRequest(ctx, u, params)
	if err != nil {
		return nil, err
	}

	var raw projectResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding project response: %w", err)
	}
	return raw.toModel(), nil
}

// GetRepositories fetches all repositories in a project.
func (c *Client) GetRepositories(ctx context.Context, project string) ([]model.Repository, error) {
	u := fmt.Sprintf("%s/%s/_apis/git/repositories", c.baseURL, url.PathEscape(project))
	params := url.Values{"api-version": {apiVersion}}

	body, err := c.doRequest(ctx, u, params)
	if err != nil {
		return nil, err
	}

	var raw listResponse[repositoryResponse]
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding repositories response: %w", err)
	}

	repos := make([]model.Repository, 0, len(raw.Value))
	for _, r := range raw.Value {
		repos = append(repos, r.toModel())
	}
	return repos, nil
}

// GetCommits fetches one page of commits from a repository.
func (c *Client) GetCommits(ctx context.Context, project, repository, branch string, top, skip int) ([]model.Commit, error) {
	u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/commits",
		c.baseURL, url.PathEscape(project), url.PathEscape(repository))

	params := url.Values{
		"api-version": {apiVersion},
		"$top":        {strconv.Itoa(top)},
		"$skip":       {strconv.Itoa(skip)},
	}
	if branch != "" {
		params.Set("searchCriteria.itemVersion.version", branch)
	}

	body, err := c.doRequest(ctx, u, params)
	if err != nil {
		return nil, err
	}

	var raw listResponse[commitResponse]
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding commits response: %w", err)
	}

	commits := make([]model.Commit, 0, len(raw.Value))
	for _, cr := range raw.Value {
		commits = append(commits, cr.toModel())
	}
	return commits, nil
}

// GetBranches fetches all branch heads in a repository.
func (c *Client) GetBranches(ctx context.Context, project, repository string) ([]model.Branch, error) {
	u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/refs",
		c.baseURL, url.PathEscape(project), url.PathEscape(repository))
	params := url.Values{
		"api-version": {apiVersion},
		"filter":      {"heads/"},
	}

	body, err := c.doRequest(ctx, u, params)
	if err != nil {
		return nil, err
	}

	var raw listResponse[refResponse]
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding refs response: %w", err)
	}

	branches := make([]model.Branch, 0, len(raw.Value))
	for _, r := range raw.Value {
		branches = append(branches, r.toModel())
	}
	return branches, nil
}

// GetPullRequests fetches one page of pull requests from a repository.
func (c *Client) GetPullRequests(ctx context.Context, project, repository, status string, top, skip int) ([]model.PullRequest, error) {
	u := fmt.Sprintf("%s/%s/_apis/git/repositories/%s/pullrequests",
		c.baseURL, url.PathEscape(project), url.PathEscape(repository))

	params := url.Values{
		"api-version":           {apiVersion},
		"searchCriteria.status": {status},
		"$top":                  {strconv.Itoa(top)},
		"$skip":                 {strconv.Itoa(skip)},
	}

	body, err := c.doRequest(ctx, u, params)
	if err != nil {
		return nil, err
	}

	var raw listResponse[pullRequestResponse]
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding pull requests response: %w", err)
	}

	prs := make([]model.PullRequest, 0, len(raw.Value))
	for _, pr := range raw.Value {
		prs = append(prs, pr.toModel())
	}
	return prs, nil
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
