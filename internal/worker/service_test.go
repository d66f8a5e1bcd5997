// internal/worker/service_test.go
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git-analytics-service/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingExecutor notes the order requests were executed in and can be told
// to fail specific ones.
type recordingExecutor struct {
	mu       sync.Mutex
	executed []int64
	fail     map[int64]error
}

func (r *recordingExecutor) Execute(_ context.Context, req model.AnalyticsRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, req.ID)
	if r.fail != nil {
		return r.fail[req.ID]
	}
	return nil
}

func (r *recordingExecutor) order() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.executed))
	copy(out, r.executed)
	return out
}

func newTestService(st *stubStore, exec Executor, opts Options) *Service {
	return NewService(st, exec, testLogger(), opts)
}

func TestRecoverInterruptedResetsStaleRunningRequests(t *testing.T) {
	st := newStubStore()
	staleStart := time.Now().UTC().Add(-10 * time.Minute)
	freshStart := time.Now().UTC().Add(-1 * time.Minute)

	stale := st.addRequest(model.AnalyticsRequest{
		ProjectName:  "proj",
		Status:       model.StatusRunning,
		StartedDate:  &staleStart,
		ErrorMessage: "previous run crashed",
	})
	fresh := st.addRequest(model.AnalyticsRequest{
		ProjectName: "proj",
		Status:      model.StatusRunning,
		StartedDate: &freshStart,
	})
	neverStarted := st.addRequest(model.AnalyticsRequest{
		ProjectName: "proj",
		Status:      model.StatusRunning,
	})

	svc := newTestService(st, &recordingExecutor{}, Options{StaleThreshold: 5 * time.Minute})

	require.NoError(t, svc.recoverInterrupted(context.Background()))

	got := st.request(stale.ID)
	assert.Equal(t, model.StatusRequested, got.Status)
	assert.Nil(t, got.StartedDate, "reset must clear started_date so the next claim stamps fresh")
	assert.Empty(t, got.ErrorMessage)

	assert.Equal(t, model.StatusRunning, st.request(fresh.ID).Status)
	assert.Equal(t, model.StatusRunning, st.request(neverStarted.ID).Status)
}

func TestPollOnceExecutesQueuedRequestsInOrder(t *testing.T) {
	st := newStubStore()
	first := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})
	second := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})
	third := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})

	exec := &recordingExecutor{}
	svc := newTestService(st, exec, Options{})

	require.NoError(t, svc.pollOnce(context.Background()))

	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, exec.order())
}

func TestPollOnceSkipsRequestsAlreadyInFlight(t *testing.T) {
	st := newStubStore()
	first := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})
	second := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})

	exec := &recordingExecutor{}
	svc := newTestService(st, exec, Options{})

	require.True(t, svc.claim(first.ID))

	require.NoError(t, svc.pollOnce(context.Background()))

	assert.Equal(t, []int64{second.ID}, exec.order())
}

func TestPollOnceContinuesAfterExecutorFailure(t *testing.T) {
	st := newStubStore()
	first := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})
	second := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})

	exec := &recordingExecutor{fail: map[int64]error{first.ID: errors.New("boom")}}
	svc := newTestService(st, exec, Options{})

	require.NoError(t, svc.pollOnce(context.Background()))

	assert.Equal(t, []int64{first.ID, second.ID}, exec.order())

	// The failed request is released so a later poll can retry it once
	// something resets its status.
	status := svc.Status()
	assert.Zero(t, status.ProcessingCount)
}

func TestStartIsIdempotentAndStopTerminatesLoop(t *testing.T) {
	st := newStubStore()
	exec := &recordingExecutor{}
	svc := newTestService(st, exec, Options{
		PollInterval:        5 * time.Millisecond,
		ResultRetentionDays: 1,
	})

	svc.Start(context.Background())
	assert.True(t, svc.Status().Running)

	// Second Start must not spawn a second loop.
	svc.Start(context.Background())
	assert.True(t, svc.Status().Running)

	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.cleanups > 0
	}, time.Second, 5*time.Millisecond, "cleanup should run on each poll cycle")

	svc.Stop(time.Second)
	assert.False(t, svc.Status().Running)
}

func TestServiceExecutesQueuedRequestWhileRunning(t *testing.T) {
	st := newStubStore()
	req := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})

	exec := &recordingExecutor{}
	svc := newTestService(st, exec, Options{PollInterval: 5 * time.Millisecond})

	svc.Start(context.Background())
	defer svc.Stop(time.Second)

	require.Eventually(t, func() bool {
		for _, id := range exec.order() {
			if id == req.ID {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestServiceSurvivesListErrors(t *testing.T) {
	st := newStubStore()
	st.listErr = errStoreDown

	exec := &recordingExecutor{}
	svc := newTestService(st, exec, Options{PollInterval: 5 * time.Millisecond})

	err := svc.pollOnce(context.Background())
	require.ErrorIs(t, err, errStoreDown)

	// Clearing the fault lets the next poll proceed normally.
	st.mu.Lock()
	st.listErr = nil
	st.mu.Unlock()
	req := st.addRequest(model.AnalyticsRequest{ProjectName: "proj"})

	require.NoError(t, svc.pollOnce(context.Background()))
	assert.Equal(t, []int64{req.ID}, exec.order())
}

func TestStatusReportsInFlightRequests(t *testing.T) {
	svc := newTestService(newStubStore(), &recordingExecutor{}, Options{PollInterval: time.Second})

	require.True(t, svc.claim(7))
	require.True(t, svc.claim(3))
	require.False(t, svc.claim(7), "claiming twice must fail")

	status := svc.Status()
	assert.Equal(t, 2, status.ProcessingCount)
	assert.Equal(t, []int64{3, 7}, status.ProcessingRequests)
	assert.Equal(t, "1s", status.PollInterval)

	svc.release(7)
	assert.Equal(t, 1, svc.Status().ProcessingCount)
}
