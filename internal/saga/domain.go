// Package saga implements the SagaOrchestrator: a persisted, multi-step
// distributed transaction that executes its steps in order and compensates
// them in reverse order on failure.
package saga

import (
	"context"
	"time"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
)

// Status is the saga's position in its state machine.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusCompensating Status = "compensating"
	StatusCompensated  Status = "compensated"
)

// IsTerminal reports whether the status is one of the two terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCompensated
}

// BackoffStrategy selects the delay schedule between a step's retry attempts.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy governs how many times a step is retried and how long to wait
// between attempts.
type RetryPolicy struct {
	MaxRetries     int
	Backoff        BackoffStrategy
	InitialDelay   time.Duration
}

// Delay returns the wait before retry attempt n (0-indexed: the first retry
// is attempt 0).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	switch p.Backoff {
	case BackoffLinear:
		return p.InitialDelay * time.Duration(attempt+1)
	case BackoffExponential:
		return p.InitialDelay * time.Duration(1<<uint(attempt))
	default:
		return p.InitialDelay
	}
}

// Step is a single, immutable unit of saga work: an action to invoke and the
// compensation that reverses it if a later step fails.
type Step struct {
	Name         string
	Service      string
	Action       string
	Compensation string
	Timeout      time.Duration
	Retry        RetryPolicy
	Payload      []byte
}

// StepStatus is the outcome recorded for one execution of a step.
type StepStatus string

const (
	StepStatusCompleted    StepStatus = "completed"
	StepStatusFailed       StepStatus = "failed"
	StepStatusCompensated  StepStatus = "compensated"
	StepStatusCompensationFailed StepStatus = "compensation_failed"
)

// StepResult records the outcome of executing or compensating one step.
type StepResult struct {
	StepName             string
	Status               StepStatus
	Error                string
	StartedAt            time.Time
	FinishedAt           time.Time
	Attempts             int
	CompensationAttempts int
}

// Instance is a single running (or finished) saga.
type Instance struct {
	ID          string
	Name        string
	Steps       []Step
	Status      Status
	CurrentStep int
	StepResults []StepResult
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Metadata    map[string]string
	LastError   string
}

// StartRequest is the input to Start.
type StartRequest struct {
	Name     string
	Steps    []Step
	Metadata map[string]string
}

// Dispatcher is how the orchestrator reaches outside the core to run a
// step's action or compensation. Both calls are cancellable via ctx and the
// core makes no assumption about their transport.
type Dispatcher interface {
	Invoke(ctx context.Context, service, action string, payload []byte) ([]byte, error)
	Compensate(ctx context.Context, service, compensation string, payload []byte) ([]byte, error)
}

// Store persists saga instances. Every status transition in the state
// machine is written through Update before the orchestrator acts on it again,
// so a crash between transitions always leaves a resumable, consistent
// record behind.
type Store interface {
	Save(ctx context.Context, instance *Instance) error
	Update(ctx context.Context, instance *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
}

// Orchestrator is the SagaOrchestrator contract (spec §4.2).
type Orchestrator interface {
	Start(ctx context.Context, req StartRequest) (string, error)
	Status(ctx context.Context, sagaID string) (*Instance, error)
	Compensate(ctx context.Context, sagaID string) error
	Resume(ctx context.Context, sagaID string) error
}

func validateStart(req StartRequest) error {
	if req.Name == "" {
		return domain.NewValidationFieldError("name", "saga name must not be empty")
	}
	if len(req.Steps) == 0 {
		return domain.NewValidationFieldError("steps", "saga must have at least one step")
	}
	for _, s := range req.Steps {
		if s.Name == "" {
			return domain.NewValidationFieldError("steps.name", "step name must not be empty")
		}
		if s.Timeout <= 0 {
			return domain.NewValidationFieldError("steps.timeout", "step timeout must be positive")
		}
		if s.Retry.MaxRetries < 0 {
			return domain.NewValidationFieldError("steps.retry.max_retries", "max_retries must be >= 0")
		}
	}
	return nil
}
