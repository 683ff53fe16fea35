// internal/dispatch/executor.go
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/gateway"
)

// Executor performs exactly one gateway send attempt per call, bounded by
// a timeout so an unresponsive gateway cannot stall a dispatch pass.
type Executor struct {
	Gateway gateway.Gateway
	Timeout time.Duration
}

func NewExecutor(gw gateway.Gateway, timeout time.Duration) *Executor {
	return &Executor{Gateway: gw, Timeout: timeout}
}

// Execute sends one message. Failures always come back as a
// *apperrors.DispatchError carrying the failure class.
func (e *Executor) Execute(ctx context.Context, channelID, recipient, body string) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	err := e.Gateway.Send(ctx, channelID, recipient, body)
	if err == nil {
		return nil
	}

	var derr *apperrors.DispatchError
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewDispatch(apperrors.DispatchGatewayUnavailable, err)
	}
	return apperrors.NewDispatch(apperrors.DispatchUnknown, err)
}
