// internal/gateway/gateway.go
package gateway

import "context"

// Gateway is the abstract send capability. channelID names the WhatsApp
// instance the message goes out through.
type Gateway interface {
	Send(ctx context.Context, channelID, recipient, body string) error
}

// Func adapts a plain function to the Gateway interface.
type Func func(ctx context.Context, channelID, recipient, body string) error

func (f Func) Send(ctx context.Context, channelID, recipient, body string) error {
	return f(ctx, channelID, recipient, body)
}
