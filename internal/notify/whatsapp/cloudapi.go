// Package whatsapp holds WhatsApp transports: the Cloud API (primary) and a generic signed webhook (last resort).
// The Twilio WhatsApp sender lives in package twilio.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"workforce-auth/internal/notify"
)

// DefaultCloudBaseURL is the Graph API version prefix used for the Cloud API.
const DefaultCloudBaseURL = "https://graph.facebook.com/v19.0"

// CloudAPIClient sends text messages through the WhatsApp Business Cloud API.
type CloudAPIClient struct {
	Token         string
	PhoneNumberID string
	BaseURL       string
	HTTPClient    *http.Client
}

// NewCloudAPIClient returns a Cloud API sender. baseURL defaults to DefaultCloudBaseURL.
func NewCloudAPIClient(token, phoneNumberID, baseURL string) *CloudAPIClient {
	if baseURL == "" {
		baseURL = DefaultCloudBaseURL
	}
	return &CloudAPIClient{
		Token:         token,
		PhoneNumberID: phoneNumberID,
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: notify.DefaultTimeout},
	}
}

func (c *CloudAPIClient) Name() string { return "whatsapp-cloud" }

func (c *CloudAPIClient) Configured() bool { return c.Token != "" && c.PhoneNumberID != "" }

type cloudText struct {
	Body string `json:"body"`
}

type cloudMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             cloudText `json:"text"`
}

// Send posts a text message to the E.164 address to.
func (c *CloudAPIClient) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return notify.ErrNotConfigured
	}
	raw, err := json.Marshal(cloudMessage{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "text",
		Text:             cloudText{Body: body},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+c.PhoneNumberID+"/messages", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	return notify.Do(c.HTTPClient, req)
}
