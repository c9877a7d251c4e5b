package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForTerminal(t *testing.T, store Store, sagaID string, timeout time.Duration) *Instance {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		instance, err := store.Get(context.Background(), sagaID)
		require.NoError(t, err)
		if instance.Status.IsTerminal() {
			return instance
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("saga %s did not reach a terminal state within %s", sagaID, timeout)
	return nil
}

func twoStepRequest() StartRequest {
	return StartRequest{
		Name: "s",
		Steps: []Step{
			{Name: "step1", Service: "svcA", Action: "do", Compensation: "undo", Timeout: time.Second, Retry: RetryPolicy{MaxRetries: 1, Backoff: BackoffFixed, InitialDelay: 5 * time.Millisecond}},
			{Name: "step2", Service: "svcB", Action: "do", Compensation: "undo", Timeout: time.Second, Retry: RetryPolicy{MaxRetries: 1, Backoff: BackoffFixed, InitialDelay: 5 * time.Millisecond}},
		},
	}
}

// S4: happy path reaches Completed with current_step at the last index.
func TestStart_HappyPathCompletes(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	o := NewOrchestrator(store, dispatcher, testLogger())

	sagaID, err := o.Start(context.Background(), twoStepRequest())
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, time.Second)
	assert.Equal(t, StatusCompleted, instance.Status)
	assert.Equal(t, 1, instance.CurrentStep)

	invokes := 0
	for _, c := range dispatcher.Calls {
		if c.Kind == "invoke" {
			invokes++
		}
	}
	assert.Equal(t, 2, invokes)
}

// S5: step2 fails every attempt; compensation runs in reverse order and only
// for steps that actually succeeded.
func TestStart_FailureCompensatesCompletedStepsInReverseOrder(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	dispatcher.OnInvoke("svcB", "do", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("step2 always fails")
	})
	o := NewOrchestrator(store, dispatcher, testLogger())

	req := twoStepRequest()
	sagaID, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, 2*time.Second)
	assert.Equal(t, StatusCompensated, instance.Status)

	var calls []DispatchCall
	calls = dispatcher.Calls

	// invoke(step1), invoke(step2) x (max_retries+1), compensate(step1).
	// step2 never succeeded, so it is never compensated.
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, DispatchCall{Kind: "invoke", Service: "svcA", Action: "do"}, calls[0])

	step2Invokes := 0
	for _, c := range calls {
		if c.Kind == "invoke" && c.Service == "svcB" {
			step2Invokes++
		}
	}
	assert.Equal(t, req.Steps[1].Retry.MaxRetries+1, step2Invokes)

	compensates := 0
	for _, c := range calls {
		if c.Kind == "compensate" {
			compensates++
			assert.Equal(t, "svcA", c.Service, "only step1 should ever be compensated")
		}
	}
	assert.Equal(t, 1, compensates)

	// compensate(step1) is the last recorded call.
	assert.Equal(t, DispatchCall{Kind: "compensate", Service: "svcA", Action: "undo"}, calls[len(calls)-1])
}

// Compensation retries a failing step's compensation up to
// maxCompensationAttempts times before giving up, recording every attempt.
func TestStart_CompensationRetriesThenFailsAfterBoundedAttempts(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	dispatcher.OnInvoke("svcB", "do", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("step2 always fails")
	})
	dispatcher.OnCompensate("svcA", "undo", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("compensation always fails")
	})
	o := NewOrchestrator(store, dispatcher, testLogger())

	sagaID, err := o.Start(context.Background(), twoStepRequest())
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, 2*time.Second)
	assert.Equal(t, StatusCompensated, instance.Status)
	assert.Equal(t, StepStatusCompensationFailed, instance.StepResults[0].Status)
	assert.Equal(t, maxCompensationAttempts, instance.StepResults[0].CompensationAttempts)
	assert.NotEmpty(t, instance.StepResults[0].Error)

	compensates := 0
	for _, c := range dispatcher.Calls {
		if c.Kind == "compensate" {
			compensates++
		}
	}
	assert.Equal(t, maxCompensationAttempts, compensates)
}

// Compensation that fails on its first attempts but succeeds within the
// bounded attempt count is recorded as compensated, not failed.
func TestStart_CompensationSucceedsAfterRetry(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	dispatcher.OnInvoke("svcB", "do", func(ctx context.Context, payload []byte) ([]byte, error) {
		return nil, errors.New("step2 always fails")
	})

	failures := 0
	dispatcher.OnCompensate("svcA", "undo", func(ctx context.Context, payload []byte) ([]byte, error) {
		failures++
		if failures < 2 {
			return nil, errors.New("transient compensation failure")
		}
		return nil, nil
	})
	o := NewOrchestrator(store, dispatcher, testLogger())

	sagaID, err := o.Start(context.Background(), twoStepRequest())
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, 2*time.Second)
	assert.Equal(t, StatusCompensated, instance.Status)
	assert.Equal(t, StepStatusCompensated, instance.StepResults[0].Status)
	assert.Equal(t, 2, instance.StepResults[0].CompensationAttempts)
	assert.Empty(t, instance.StepResults[0].Error)
}

func TestStart_RejectsInvalidInput(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(), NewMemoryDispatcher(), testLogger())

	_, err := o.Start(context.Background(), StartRequest{Name: "", Steps: []Step{{Name: "s", Timeout: time.Second}}})
	assert.Error(t, err)

	_, err = o.Start(context.Background(), StartRequest{Name: "s", Steps: nil})
	assert.Error(t, err)

	_, err = o.Start(context.Background(), StartRequest{Name: "s", Steps: []Step{{Name: "s", Timeout: 0}}})
	assert.Error(t, err)
}

func TestStep_TimesOutWhenDispatcherNeverReturns(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	dispatcher.OnInvoke("svcA", "do", func(ctx context.Context, payload []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := NewOrchestrator(store, dispatcher, testLogger())

	req := StartRequest{
		Name: "timeout-saga",
		Steps: []Step{
			{Name: "step1", Service: "svcA", Action: "do", Timeout: 20 * time.Millisecond, Retry: RetryPolicy{MaxRetries: 0, Backoff: BackoffFixed, InitialDelay: time.Millisecond}},
		},
	}
	sagaID, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, time.Second)
	assert.Equal(t, StatusCompensated, instance.Status)
}

func TestCompensate_RejectsTerminalSaga(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, NewMemoryDispatcher(), testLogger())

	instance := &Instance{ID: "already-done", Name: "s", Status: StatusCompleted, Steps: twoStepRequest().Steps}
	require.NoError(t, store.Save(context.Background(), instance))

	err := o.Compensate(context.Background(), "already-done")
	assert.Error(t, err)
}

func TestResume_ContinuesFromCurrentStep(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	o := NewOrchestrator(store, dispatcher, testLogger())

	req := twoStepRequest()
	instance := &Instance{
		ID:          "resumable",
		Name:        req.Name,
		Steps:       req.Steps,
		Status:      StatusRunning,
		CurrentStep: 0,
		StepResults: []StepResult{{StepName: "step1", Status: StepStatusCompleted}},
	}
	require.NoError(t, store.Save(context.Background(), instance))

	require.NoError(t, o.Resume(context.Background(), "resumable"))

	final := waitForTerminal(t, store, "resumable", time.Second)
	assert.Equal(t, StatusCompleted, final.Status)

	for _, c := range dispatcher.Calls {
		assert.NotEqual(t, "svcA", c.Service, "already-completed step1 must not be re-invoked")
	}
}

func TestFaultInjection_ForcesEveryAttemptToFail(t *testing.T) {
	store := NewMemoryStore()
	dispatcher := NewMemoryDispatcher()
	o := NewOrchestrator(store, dispatcher, testLogger(), WithFaultInjection(1.0))

	req := StartRequest{
		Name: "faulty",
		Steps: []Step{
			{Name: "step1", Service: "svcA", Action: "do", Timeout: time.Second, Retry: RetryPolicy{MaxRetries: 0, Backoff: BackoffFixed, InitialDelay: time.Millisecond}},
		},
	}
	sagaID, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	instance := waitForTerminal(t, store, sagaID, time.Second)
	assert.Equal(t, StatusCompensated, instance.Status)
}

func TestWorkerPool_RejectsAdmissionPastRate(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(), NewMemoryDispatcher(), testLogger(), WithWorkerPool(0, 1))

	req := twoStepRequest()
	_, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	_, err = o.Start(context.Background(), req)
	require.Error(t, err)
}

// With a submit timeout configured, Start blocks for a free slot instead of
// rejecting immediately, and succeeds once the limiter replenishes within
// that window.
func TestWorkerPool_BlocksUpToSubmitTimeoutThenAdmits(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(), NewMemoryDispatcher(), testLogger(),
		WithWorkerPool(20, 1), WithSubmitTimeout(200*time.Millisecond))

	req := twoStepRequest()
	_, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	start := time.Now()
	_, err = o.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), time.Duration(0))
}

// A submit timeout shorter than the replenishment interval still gives up
// with an overloaded error rather than blocking forever.
func TestWorkerPool_GivesUpAfterSubmitTimeoutExpires(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(), NewMemoryDispatcher(), testLogger(),
		WithWorkerPool(0.1, 1), WithSubmitTimeout(20*time.Millisecond))

	req := twoStepRequest()
	_, err := o.Start(context.Background(), req)
	require.NoError(t, err)

	_, err = o.Start(context.Background(), req)
	require.Error(t, err)
}
