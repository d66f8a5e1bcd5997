// internal/worker/service.go

// Package worker runs the background polling loop that claims queued
// analytics requests, executes them and recovers work orphaned by a crash.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"git-analytics-service/internal/model"
	"git-analytics-service/internal/store"
)

const (
	defaultPollInterval   = 10 * time.Second
	defaultStaleThreshold = 5 * time.Minute

	// How long the loop pauses after an unexpected polling error before
	// resuming. A single bad iteration must never kill the service.
	errorPause = 5 * time.Second
)

// Executor runs one claimed analytics request to a terminal state.
type Executor interface {
	Execute(ctx context.Context, req model.AnalyticsRequest) error
}

// Options tunes the polling service.
type Options struct {
	PollInterval        time.Duration
	StaleThreshold      time.Duration
	ResultRetentionDays int
}

// Status is the observable state of the service.
type Status struct {
	Running            bool    `json:"running"`
	ProcessingCount    int     `json:"processing_count"`
	ProcessingRequests []int64 `json:"processing_requests"`
	PollInterval       string  `json:"poll_interval"`
}

// Service is the single polling worker of the process. The composition root
// constructs exactly one and owns its lifecycle; Start on an already-running
// service is a no-op.
type Service struct {
	store          store.Store
	exec           Executor
	logger         *slog.Logger
	pollInterval   time.Duration
	staleThreshold time.Duration
	retention      time.Duration

	mu         sync.Mutex
	processing map[int64]struct{}
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewService wires the polling service. Zero option values fall back to the
// defaults above; a zero retention disables result cleanup.
func NewService(st store.Store, exec Executor, logger *slog.Logger, opts Options) *Service {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	staleThreshold := opts.StaleThreshold
	if staleThreshold <= 0 {
		staleThreshold = defaultStaleThreshold
	}
	var retention time.Duration
	if opts.ResultRetentionDays > 0 {
		retention = time.Duration(opts.ResultRetentionDays) * 24 * time.Hour
	}

	return &Service{
		store:          st,
		exec:           exec,
		logger:         logger,
		pollInterval:   pollInterval,
		staleThreshold: staleThreshold,
		retention:      retention,
		processing:     make(map[int64]struct{}),
	}
}

// Start launches the polling loop. Calling it while the loop is already
// running logs a warning and does nothing.
func (s *Service) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("Polling service is already running")
		return
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx, s.done)
	s.logger.Info("Polling service started",
		"poll_interval", s.pollInterval.String(), "stale_threshold", s.staleThreshold.String())
}

// Stop signals the loop to exit and waits for it with a bounded timeout.
func (s *Service) Stop(timeout time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	s.logger.Info("Stopping polling service")
	cancel()

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn("Polling service did not stop within timeout", "timeout", timeout.String())
		return
	}

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()
	s.logger.Info("Polling service stopped")
}

// Status reports the running flag and the requests currently in flight.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.processing))
	for id := range s.processing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return Status{
		Running:            s.running,
		ProcessingCount:    len(ids),
		ProcessingRequests: ids,
		PollInterval:       s.pollInterval.String(),
	}
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	if err := s.recoverInterrupted(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Error checking for interrupted requests", "error", err)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.pollOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Error in polling loop", "error", err)
			if !sleepOrDone(ctx, errorPause) {
				return
			}
			continue
		}

		s.cleanupResults(ctx)

		if !sleepOrDone(ctx, s.pollInterval) {
			return
		}
	}
}

// recoverInterrupted resets Running requests whose started timestamp is older
// than the staleness threshold back to Requested, clearing any stale error.
// This is the only backward transition in the state machine.
func (s *Service) recoverInterrupted(ctx context.Context) error {
	running, err := s.store.ListRequests(ctx, model.StatusRunning)
	if err != nil {
		return err
	}

	for _, req := range running {
		if req.StartedDate == nil {
			continue
		}
		age := time.Since(*req.StartedDate)
		if age <= s.staleThreshold {
			continue
		}

		s.logger.Warn("Request appears to have been interrupted, resetting to Requested",
			"request_id", req.ID, "running_for", age.String())
		clearError := ""
		if err := s.store.UpdateRequestStatus(ctx, req.ID, model.StatusRequested, store.UpdateRequestOptions{
			ErrorMessage: &clearError,
		}); err != nil {
			return err
		}
	}

	s.logger.Info("Completed check for interrupted requests")
	return nil
}

// pollOnce claims and executes every currently queued request, one at a time.
func (s *Service) pollOnce(ctx context.Context) error {
	pending, err := s.store.ListRequests(ctx, model.StatusRequested)
	if err != nil {
		return err
	}

	for _, req := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.claim(req.ID) {
			continue
		}

		s.logger.Info("Processing analytics request", "request_id", req.ID, "project", req.ProjectName)
		if err := s.exec.Execute(ctx, req); err != nil && !errors.Is(err, context.Canceled) {
			// Terminal status bookkeeping happens inside the executor; here
			// the failure only needs to be visible in the logs.
			s.logger.Error("Failed to process analytics request", "request_id", req.ID, "error", err)
		} else if err == nil {
			s.logger.Info("Completed analytics request", "request_id", req.ID)
		}
		s.release(req.ID)
	}
	return nil
}

func (s *Service) cleanupResults(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	deleted, err := s.store.CleanupOldResults(ctx, s.retention)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Failed to clean up old analytics results", "error", err)
		}
		return
	}
	if deleted > 0 {
		s.logger.Info("Cleaned up old analytics results", "deleted", deleted)
	}
}

// claim adds the request to the in-process set; false means some earlier
// iteration of this same process is still working on it.
func (s *Service) claim(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processing[id]; ok {
		return false
	}
	s.processing[id] = struct{}{}
	return true
}

func (s *Service) release(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, id)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
