// Package email sends HTML email: through a JSON mail API in deployments, to the log in development.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"workforce-auth/internal/notify"
)

// Sender delivers one HTML email.
type Sender interface {
	Name() string
	Send(ctx context.Context, to, subject, html string) error
}

// HTTPClient posts {"from","to","subject","html"} to a transactional mail API with a bearer key.
type HTTPClient struct {
	URL        string
	APIKey     string
	From       string
	HTTPClient *http.Client
}

// NewHTTPClient returns a mail API sender.
func NewHTTPClient(url, apiKey, from string) *HTTPClient {
	return &HTTPClient{URL: url, APIKey: apiKey, From: from, HTTPClient: &http.Client{Timeout: notify.DefaultTimeout}}
}

func (c *HTTPClient) Name() string { return "email-api" }

// Configured reports whether the API URL and key are set.
func (c *HTTPClient) Configured() bool { return c.URL != "" && c.APIKey != "" }

type apiMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (c *HTTPClient) Send(ctx context.Context, to, subject, html string) error {
	if !c.Configured() {
		return notify.ErrNotConfigured
	}
	raw, err := json.Marshal(apiMessage{From: c.From, To: []string{to}, Subject: subject, HTML: html})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	return notify.Do(c.HTTPClient, req)
}

// LogSender writes emails to the logger instead of sending them. Development only.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Name() string { return "email-log" }

func (s *LogSender) Send(ctx context.Context, to, subject, html string) error {
	s.Logger.Info("email (not sent, development)",
		zap.String("to", to), zap.String("subject", subject), zap.String("html", html))
	return nil
}
