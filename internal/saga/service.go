package saga

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Option configures an orchestrator at construction time.
type Option func(*orchestrator)

// WithFaultInjection makes every step attempt fail with the given
// probability regardless of what the dispatcher returns. It exists for
// exercising retry and compensation paths in tests and must never be wired
// from a production entrypoint.
func WithFaultInjection(rate float64) Option {
	return func(o *orchestrator) { o.faultRate = rate }
}

// WithWorkerPool bounds how many sagas may begin execution per second. Past
// that rate, Start either rejects admission immediately (no WithSubmitTimeout
// configured) or blocks up to the configured submit timeout waiting for a
// free slot before giving up with an overloaded error.
func WithWorkerPool(eventsPerSecond float64, burst int) Option {
	return func(o *orchestrator) { o.limiter = rate.NewLimiter(rate.Limit(eventsPerSecond), burst) }
}

// WithSubmitTimeout bounds how long Start blocks waiting for worker-pool
// admission once WithWorkerPool is saturated, instead of rejecting
// immediately. It has no effect without WithWorkerPool.
func WithSubmitTimeout(d time.Duration) Option {
	return func(o *orchestrator) { o.submitTimeout = d }
}

type orchestrator struct {
	store         Store
	dispatcher    Dispatcher
	logger        *slog.Logger
	limiter       *rate.Limiter
	submitTimeout time.Duration
	faultRate     float64
}

// NewOrchestrator builds the SagaOrchestrator (spec §4.2) over a Store and a
// Dispatcher. Execution of each saga happens on a detached goroutine spawned
// from Start/Resume/Compensate; the returned value only ever reflects what
// has already been persisted.
func NewOrchestrator(store Store, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) Orchestrator {
	o := &orchestrator{store: store, dispatcher: dispatcher, logger: logger}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *orchestrator) Start(ctx context.Context, req StartRequest) (string, error) {
	if err := validateStart(req); err != nil {
		return "", err
	}
	if err := o.admit(ctx); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	instance := &Instance{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Steps:     req.Steps,
		Status:    StatusPending,
		Metadata:  req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.Save(ctx, instance); err != nil {
		return "", domain.WrapError(err, "failed to persist saga")
	}

	o.logger.Info("saga started", "saga_id", instance.ID, "name", instance.Name, "steps", len(instance.Steps))

	// The spawned goroutine outlives this call: it carries the saga_id and a
	// context detached from the caller's cancellation, and every state change
	// it makes goes through the store, never through instance fields shared
	// with this stack frame.
	detached := context.WithoutCancel(ctx)
	go o.run(detached, instance.ID)

	return instance.ID, nil
}

// admit applies worker-pool backpressure to a saga start. With no limiter
// configured it is a no-op. With a limiter but no submit timeout, it rejects
// immediately when the pool is saturated. With both configured, it blocks up
// to submitTimeout waiting for a free slot before giving up.
func (o *orchestrator) admit(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}

	if o.submitTimeout <= 0 {
		if !o.limiter.Allow() {
			return domain.NewOverloadedError("saga dispatch worker pool")
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	defer cancel()
	if err := o.limiter.Wait(waitCtx); err != nil {
		return domain.NewOverloadedError("saga dispatch worker pool")
	}
	return nil
}

func (o *orchestrator) Status(ctx context.Context, sagaID string) (*Instance, error) {
	return o.store.Get(ctx, sagaID)
}

func (o *orchestrator) Compensate(ctx context.Context, sagaID string) error {
	instance, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return err
	}
	if instance.Status != StatusRunning && instance.Status != StatusFailed {
		return domain.NewConflictError(fmt.Sprintf("saga %s is %s, forced compensation requires running or failed", sagaID, instance.Status))
	}

	detached := context.WithoutCancel(ctx)
	go o.runCompensation(detached, instance)
	return nil
}

func (o *orchestrator) Resume(ctx context.Context, sagaID string) error {
	instance, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	switch instance.Status {
	case StatusPending, StatusRunning:
		go o.execute(detached, instance)
	case StatusFailed, StatusCompensating:
		go o.runCompensation(detached, instance)
	case StatusCompleted, StatusCompensated:
		// already terminal, nothing to resume
	default:
		return domain.NewValidationError(fmt.Sprintf("unknown saga status: %s", instance.Status))
	}
	return nil
}

func (o *orchestrator) run(ctx context.Context, sagaID string) {
	instance, err := o.store.Get(ctx, sagaID)
	if err != nil {
		o.logger.Error("failed to load saga for execution", "saga_id", sagaID, "error", err)
		return
	}
	o.execute(ctx, instance)
}

// execute runs instance.Steps in order starting at instance.CurrentStep,
// which is 0 for a fresh saga and the last-attempted index after a crash.
func (o *orchestrator) execute(ctx context.Context, instance *Instance) {
	instance.Status = StatusRunning
	instance.UpdatedAt = time.Now().UTC()
	o.persist(ctx, instance)

	for i := instance.CurrentStep; i < len(instance.Steps); i++ {
		if i < len(instance.StepResults) && instance.StepResults[i].Status == StepStatusCompleted {
			continue
		}

		select {
		case <-ctx.Done():
			instance.LastError = ctx.Err().Error()
			o.fail(ctx, instance)
			return
		default:
		}

		step := instance.Steps[i]
		instance.CurrentStep = i
		instance.UpdatedAt = time.Now().UTC()
		o.persist(ctx, instance)

		result := o.executeStep(ctx, step, instance.ID)
		instance.StepResults = append(instance.StepResults, result)
		instance.UpdatedAt = time.Now().UTC()
		o.persist(ctx, instance)

		if result.Status != StepStatusCompleted {
			instance.LastError = result.Error
			o.fail(ctx, instance)
			return
		}

		o.logger.Info("saga step completed", "saga_id", instance.ID, "step", step.Name)
	}

	instance.Status = StatusCompleted
	instance.UpdatedAt = time.Now().UTC()
	o.persist(ctx, instance)
	o.logger.Info("saga completed", "saga_id", instance.ID)
}

func (o *orchestrator) fail(ctx context.Context, instance *Instance) {
	instance.Status = StatusFailed
	instance.UpdatedAt = time.Now().UTC()
	o.persist(ctx, instance)
	o.logger.Warn("saga step failed, compensating", "saga_id", instance.ID, "error", instance.LastError)
	o.runCompensation(ctx, instance)
}

// executeStep runs a single step to completion or exhaustion of its retry
// policy. Each attempt races the dispatcher call against the step's timeout.
func (o *orchestrator) executeStep(ctx context.Context, step Step, sagaID string) StepResult {
	result := StepResult{StepName: step.Name, StartedAt: time.Now().UTC()}
	maxAttempts := step.Retry.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := step.Retry.Delay(attempt - 1)
			o.logger.Info("retrying saga step", "saga_id", sagaID, "step", step.Name, "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				result.Attempts = attempt
				result.Status = StepStatusFailed
				result.Error = lastErr.Error()
				result.FinishedAt = time.Now().UTC()
				return result
			case <-time.After(delay):
			}
		}

		result.Attempts = attempt + 1
		_, err := o.invokeWithTimeout(ctx, step)
		if err == nil && o.faultRate > 0 && rand.Float64() < o.faultRate {
			err = domain.NewDependencyError(step.Service, fmt.Errorf("injected fault for %s/%s", step.Service, step.Action))
		}
		if err == nil {
			result.Status = StepStatusCompleted
			result.FinishedAt = time.Now().UTC()
			return result
		}
		lastErr = err
	}

	result.Status = StepStatusFailed
	result.Error = lastErr.Error()
	result.FinishedAt = time.Now().UTC()
	return result
}

// invokeWithTimeout races the dispatcher's Invoke against step.Timeout. The
// step context is always cancelled when this call returns, so an
// unresponsive dispatcher cannot keep the in-flight attempt alive past its
// deadline.
func (o *orchestrator) invokeWithTimeout(ctx context.Context, step Step) ([]byte, error) {
	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()

	type outcome struct {
		data []byte
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		data, err := o.dispatcher.Invoke(stepCtx, step.Service, step.Action, step.Payload)
		ch <- outcome{data, err}
	}()

	select {
	case out := <-ch:
		return out.data, out.err
	case <-stepCtx.Done():
		return nil, domain.NewTimeoutError(fmt.Sprintf("%s/%s", step.Service, step.Action))
	}
}

// maxCompensationAttempts bounds how many times a single step's compensation
// is retried before it is recorded as permanently failed.
const maxCompensationAttempts = 3

// runCompensation walks completed steps in reverse order, invoking each
// one's compensation with up to maxCompensationAttempts tries, recording
// every attempt's outcome. A step the orchestrator never reached, or that
// never completed, is skipped: there is nothing to reverse.
func (o *orchestrator) runCompensation(ctx context.Context, instance *Instance) {
	instance.Status = StatusCompensating
	instance.UpdatedAt = time.Now().UTC()
	o.persist(ctx, instance)

	o.logger.Info("saga compensation starting", "saga_id", instance.ID, "completed_steps", len(instance.StepResults))

	for i := len(instance.StepResults) - 1; i >= 0; i-- {
		result := instance.StepResults[i]
		if result.Status != StepStatusCompleted {
			continue
		}

		step := instance.Steps[i]
		if step.Compensation == "" {
			o.logger.Warn("no compensation action for step", "saga_id", instance.ID, "step", step.Name)
			continue
		}

		var lastErr error
		compensated := false

	attempts:
		for attempt := 0; attempt < maxCompensationAttempts; attempt++ {
			if attempt > 0 {
				delay := step.Retry.Delay(attempt - 1)
				select {
				case <-ctx.Done():
					lastErr = ctx.Err()
					instance.StepResults[i].CompensationAttempts = attempt
					break attempts
				case <-time.After(delay):
				}
			}

			compCtx, cancel := context.WithTimeout(ctx, step.Timeout)
			_, err := o.dispatcher.Compensate(compCtx, step.Service, step.Compensation, step.Payload)
			cancel()
			instance.StepResults[i].CompensationAttempts = attempt + 1

			if err == nil {
				compensated = true
				break attempts
			}
			lastErr = err
			o.logger.Warn("compensation attempt failed, retrying", "saga_id", instance.ID, "step", step.Name, "attempt", attempt+1, "error", err)
		}

		if compensated {
			instance.StepResults[i].Status = StepStatusCompensated
			instance.StepResults[i].Error = ""
			o.logger.Info("step compensated", "saga_id", instance.ID, "step", step.Name, "attempts", instance.StepResults[i].CompensationAttempts)
		} else {
			instance.StepResults[i].Status = StepStatusCompensationFailed
			instance.StepResults[i].Error = lastErr.Error()
			o.logger.Error("compensation failed after exhausting attempts", "saga_id", instance.ID, "step", step.Name, "attempts", instance.StepResults[i].CompensationAttempts, "error", lastErr)
		}

		instance.UpdatedAt = time.Now().UTC()
		o.persist(ctx, instance)
	}

	instance.Status = StatusCompensated
	instance.UpdatedAt = time.Now().UTC()
	o.persist(ctx, instance)
	o.logger.Info("saga compensation completed", "saga_id", instance.ID)
}

func (o *orchestrator) persist(ctx context.Context, instance *Instance) {
	if err := o.store.Update(ctx, instance); err != nil {
		o.logger.Error("failed to persist saga state", "saga_id", instance.ID, "status", instance.Status, "error", err)
	}
}
