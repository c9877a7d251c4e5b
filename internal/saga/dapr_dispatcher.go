package saga

import (
	"context"
	"fmt"

	"github.com/axiom-software-co/coordination/internal/shared/domain"
	dapr "github.com/dapr/go-sdk/client"
)

// compensationMethodPrefix routes a step's compensation name to a distinct
// Dapr service method from its action, so a service can expose forward and
// reverse operations as separate HTTP/gRPC handlers without ambiguity.
const compensationMethodPrefix = "compensate/"

// DaprDispatcher is the production Dispatcher: each Invoke/Compensate call
// becomes a single Dapr service invocation against the named app, with the
// step's action as the method name (a compensation is sent as
// compensationMethodPrefix plus the compensation name).
type DaprDispatcher struct {
	client dapr.Client
}

// NewDaprDispatcher wraps an existing Dapr client for saga step dispatch.
func NewDaprDispatcher(client dapr.Client) *DaprDispatcher {
	return &DaprDispatcher{client: client}
}

func (d *DaprDispatcher) Invoke(ctx context.Context, service, action string, payload []byte) ([]byte, error) {
	return d.invokeMethod(ctx, service, action, payload)
}

func (d *DaprDispatcher) Compensate(ctx context.Context, service, compensation string, payload []byte) ([]byte, error) {
	return d.invokeMethod(ctx, service, compensationMethodPrefix+compensation, payload)
}

func (d *DaprDispatcher) invokeMethod(ctx context.Context, service, method string, payload []byte) ([]byte, error) {
	data, err := d.client.InvokeMethodWithContent(ctx, service, method, "POST", &dapr.DataContent{
		ContentType: "application/json",
		Data:        payload,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewTimeoutError(fmt.Sprintf("%s/%s", service, method))
		}
		return nil, domain.NewDependencyError(service, err)
	}
	return data, nil
}
