package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/gateway"
)

func TestExecuteTimeoutClassifiedAsUnavailable(t *testing.T) {
	slow := gateway.Func(func(ctx context.Context, channelID, recipient, body string) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	e := NewExecutor(slow, 10*time.Millisecond)
	err := e.Execute(context.Background(), "instance-main", "5511999990000", "hello")

	var derr *apperrors.DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if derr.Class != apperrors.DispatchGatewayUnavailable {
		t.Errorf("class = %s, want gateway_unavailable", derr.Class)
	}
}

func TestExecutePreservesClassification(t *testing.T) {
	gw := gateway.Func(func(ctx context.Context, channelID, recipient, body string) error {
		return apperrors.NewDispatch(apperrors.DispatchAuthRejected, errors.New("bad apikey"))
	})

	e := NewExecutor(gw, time.Second)
	err := e.Execute(context.Background(), "instance-main", "5511999990000", "hello")

	var derr *apperrors.DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if derr.Class != apperrors.DispatchAuthRejected {
		t.Errorf("class = %s, want auth_rejected", derr.Class)
	}
}

func TestExecuteWrapsUnclassifiedErrors(t *testing.T) {
	gw := gateway.Func(func(ctx context.Context, channelID, recipient, body string) error {
		return errors.New("something odd")
	})

	e := NewExecutor(gw, time.Second)
	err := e.Execute(context.Background(), "instance-main", "5511999990000", "hello")

	var derr *apperrors.DispatchError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DispatchError, got %v", err)
	}
	if derr.Class != apperrors.DispatchUnknown {
		t.Errorf("class = %s, want unknown", derr.Class)
	}
}

func TestExecuteSuccess(t *testing.T) {
	var calls int
	gw := gateway.Func(func(ctx context.Context, channelID, recipient, body string) error {
		calls++
		return nil
	})

	e := NewExecutor(gw, time.Second)
	if err := e.Execute(context.Background(), "instance-main", "5511999990000", "hello"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 1 {
		t.Errorf("gateway called %d times, want exactly 1", calls)
	}
}
