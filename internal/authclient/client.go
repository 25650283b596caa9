// Package authclient talks to the workforce-auth HTTP API. authctl uses it to run the QR handshake as
// either device.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/qr"
	qrdomain "workforce-auth/internal/qr/domain"
	sessiondomain "workforce-auth/internal/session/domain"
)

// DefaultTimeout bounds every request. Polls must finish well inside qr.PollInterval.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response. It matches the qr sentinel errors by code.
type APIError struct {
	Status int
	Body   httpx.Error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Body.Code, e.Body.Message)
}

func (e *APIError) Is(target error) bool {
	switch e.Body.Code {
	case "qr_not_found":
		return target == qr.ErrNotFound
	case "qr_expired":
		return target == qr.ErrExpired
	case "qr_not_waiting":
		return target == qr.ErrNotWaiting
	}
	return false
}

// PollResponse is the body of GET /v1/auth/qr/:id.
type PollResponse struct {
	Status          qrdomain.Status            `json:"status"`
	TimeLeftSeconds int                        `json:"time_left_seconds,omitempty"`
	Session         *sessiondomain.AuthSession `json:"session,omitempty"`
	Reload          bool                       `json:"reload,omitempty"`
}

// ApproveRequest is the body of POST /v1/auth/qr/:id/approve when the scanning device has no session.
type ApproveRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client is a qr.Backend over HTTP.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: &http.Client{Timeout: DefaultTimeout}}
}

func (c *Client) Create(ctx context.Context) (*qr.Ticket, error) {
	var t qr.Ticket
	if err := c.do(ctx, http.MethodPost, "/v1/auth/qr", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Poll(ctx context.Context, id string) (*qr.PollResult, error) {
	var resp PollResponse
	if err := c.do(ctx, http.MethodGet, "/v1/auth/qr/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	res := &qr.PollResult{Status: resp.Status, TimeLeft: time.Duration(resp.TimeLeftSeconds) * time.Second}
	if resp.Session != nil {
		e := resp.Session.Employee
		res.Employee = &e
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/auth/qr/"+url.PathEscape(id), nil, nil)
}

// Approve authenticates with username and password and approves the session for that employee.
func (c *Client) Approve(ctx context.Context, id, username, password string) (*employeedomain.Snapshot, error) {
	var out struct {
		Employee employeedomain.Snapshot `json:"employee"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/qr/"+url.PathEscape(id)+"/approve", ApproveRequest{Username: username, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Employee, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env httpx.Envelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &env) != nil || env.Error == nil {
			return &APIError{Status: resp.StatusCode, Body: httpx.Error{Code: fmt.Sprintf("http_%d", resp.StatusCode), Message: strings.TrimSpace(string(raw))}}
		}
		return &APIError{Status: resp.StatusCode, Body: *env.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
