// Package twilio sends SMS and WhatsApp messages through the Twilio Messages API.
package twilio

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"workforce-auth/internal/notify"
)

// DefaultBaseURL is the Twilio REST API origin.
const DefaultBaseURL = "https://api.twilio.com"

// Client posts to /2010-04-01/Accounts/{sid}/Messages.json with basic auth.
type Client struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
	HTTPClient *http.Client

	name   string
	prefix string // "whatsapp:" for WhatsApp senders
}

func newClient(name, prefix, sid, token, from, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		AccountSID: sid,
		AuthToken:  token,
		From:       from,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: notify.DefaultTimeout},
		name:       name,
		prefix:     prefix,
	}
}

// NewSMS returns a Twilio SMS sender.
func NewSMS(sid, token, from, baseURL string) *Client {
	return newClient("twilio-sms", "", sid, token, from, baseURL)
}

// NewWhatsApp returns a Twilio WhatsApp sender; from is the WhatsApp-enabled E.164 number.
func NewWhatsApp(sid, token, from, baseURL string) *Client {
	return newClient("twilio-whatsapp", "whatsapp:", sid, token, from, baseURL)
}

func (c *Client) Name() string { return c.name }

func (c *Client) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

// Send delivers body to the E.164 address to.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return notify.ErrNotConfigured
	}
	form := url.Values{}
	form.Set("To", c.prefix+to)
	form.Set("From", c.prefix+c.From)
	form.Set("Body", body)
	endpoint := c.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(c.AccountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return notify.Do(c.HTTPClient, req)
}
