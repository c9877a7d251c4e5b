package saga

import (
	"context"
	"fmt"
	"sync"
)

// StepFunc is a single step's (or compensation's) behavior for MemoryDispatcher.
type StepFunc func(ctx context.Context, payload []byte) ([]byte, error)

// MemoryDispatcher is a deterministic, in-process Dispatcher for tests. It
// records every Invoke/Compensate call it receives, in order, so saga tests
// can assert exactly which calls a run produced.
type MemoryDispatcher struct {
	mu            sync.Mutex
	invokes       map[string]StepFunc
	compensations map[string]StepFunc
	Calls         []DispatchCall
}

// DispatchCall is one recorded call to the dispatcher.
type DispatchCall struct {
	Kind    string // "invoke" or "compensate"
	Service string
	Action  string
}

// NewMemoryDispatcher constructs an empty fake dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{
		invokes:       make(map[string]StepFunc),
		compensations: make(map[string]StepFunc),
	}
}

// OnInvoke registers the behavior for a service/action pair's Invoke call.
func (d *MemoryDispatcher) OnInvoke(service, action string, fn StepFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invokes[dispatchKey(service, action)] = fn
}

// OnCompensate registers the behavior for a service/compensation pair's
// Compensate call.
func (d *MemoryDispatcher) OnCompensate(service, compensation string, fn StepFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.compensations[dispatchKey(service, compensation)] = fn
}

func (d *MemoryDispatcher) Invoke(ctx context.Context, service, action string, payload []byte) ([]byte, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, DispatchCall{Kind: "invoke", Service: service, Action: action})
	fn, ok := d.invokes[dispatchKey(service, action)]
	d.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return fn(ctx, payload)
}

func (d *MemoryDispatcher) Compensate(ctx context.Context, service, compensation string, payload []byte) ([]byte, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, DispatchCall{Kind: "compensate", Service: service, Action: compensation})
	fn, ok := d.compensations[dispatchKey(service, compensation)]
	d.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return fn(ctx, payload)
}

func dispatchKey(service, action string) string {
	return fmt.Sprintf("%s/%s", service, action)
}
