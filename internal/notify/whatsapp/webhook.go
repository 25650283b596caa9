package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"workforce-auth/internal/notify"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a secret is set.
const SignatureHeader = "X-Workforce-Signature"

// WebhookClient posts {"channel","to","body"} to an operator-provided URL, e.g. a self-hosted WhatsApp gateway.
type WebhookClient struct {
	URL        string
	Secret     string
	HTTPClient *http.Client
}

// NewWebhookClient returns a webhook sender. secret may be empty.
func NewWebhookClient(url, secret string) *WebhookClient {
	return &WebhookClient{URL: url, Secret: secret, HTTPClient: &http.Client{Timeout: notify.DefaultTimeout}}
}

func (c *WebhookClient) Name() string { return "whatsapp-webhook" }

func (c *WebhookClient) Configured() bool { return c.URL != "" }

// Send posts the message to the webhook URL.
func (c *WebhookClient) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return notify.ErrNotConfigured
	}
	raw, err := json.Marshal(map[string]string{"channel": "whatsapp", "to": to, "body": body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(c.Secret, raw))
	}
	return notify.Do(c.HTTPClient, req)
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
