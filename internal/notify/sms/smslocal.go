// Package sms holds SMS transports.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"workforce-auth/internal/notify"
)

// SMSLocalClient sends SMS via the SMS Local bulk API.
// See https://www.smslocal.in/help/otp-sms/ and https://www.smslocal.com/dev/bulkV2.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: notify.DefaultTimeout},
	}
}

func (c *SMSLocalClient) Name() string { return "smslocal" }

func (c *SMSLocalClient) Configured() bool { return c.APIKey != "" }

// Send posts body to the E.164 phone (sent as digits only, route=q). Does not log the body.
func (c *SMSLocalClient) Send(ctx context.Context, phone, body string) error {
	if !c.Configured() {
		return notify.ErrNotConfigured
	}
	payload := map[string]any{
		"route":   "q",
		"numbers": strings.TrimPrefix(phone, "+"),
		"message": body,
	}
	if c.Sender != "" {
		payload["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	return notify.Do(c.HTTPClient, req)
}
