// internal/gateway/whatsapp.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
)

// WhatsAppClient talks to an Evolution-style WhatsApp Business API proxy.
// Sends go to POST {base}/message/sendText/{instance} with an apikey header.
type WhatsAppClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewWhatsAppClient(baseURL, apiKey string) *WhatsAppClient {
	return &WhatsAppClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

func (c *WhatsAppClient) Send(ctx context.Context, channelID, recipient, body string) error {
	payload, err := json.Marshal(sendTextRequest{Number: recipient, Text: body})
	if err != nil {
		return apperrors.NewDispatch(apperrors.DispatchUnknown, err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.BaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return apperrors.NewDispatch(apperrors.DispatchUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Connection refused, DNS failure, context timeout: the gateway
		// could not be reached at all.
		return apperrors.NewDispatch(apperrors.DispatchGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return apperrors.NewDispatch(classifyStatus(resp.StatusCode), fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet(resp.Body)))
}

func classifyStatus(code int) apperrors.DispatchClass {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.DispatchAuthRejected
	case code == http.StatusBadRequest || code == http.StatusNotFound || code == http.StatusUnprocessableEntity:
		return apperrors.DispatchInvalidRecipient
	case code >= 500:
		return apperrors.DispatchGatewayUnavailable
	default:
		return apperrors.DispatchUnknown
	}
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
