package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/idp"
	"workforce-auth/internal/platform/httpx"
	"workforce-auth/internal/session"
	sessiondomain "workforce-auth/internal/session/domain"
	"workforce-auth/internal/verification"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var ana = &domain.Employee{ID: "e1", OrganizationID: "o1", Username: "ana", Email: "ana@acme.com", Active: true}

type fakeVerifier struct {
	res     *verification.Result
	err     error
	method  sessiondomain.AuthMethod
	pending string
}

func (f *fakeVerifier) VerifyCode(ctx context.Context, method sessiondomain.AuthMethod, rawPhone, code string) (*verification.Result, error) {
	f.method = method
	return f.res, f.err
}

func (f *fakeVerifier) VerifyMagicLink(ctx context.Context, token, pendingEmployeeID string) (*verification.Result, error) {
	f.pending = pendingEmployeeID
	return f.res, f.err
}

func (f *fakeVerifier) VerifyPassword(ctx context.Context, username, password string) (*verification.Result, error) {
	return f.res, f.err
}

type fakeCompleter struct {
	got []session.Verified
	err error
}

func (f *fakeCompleter) Complete(ctx context.Context, v session.Verified) (*sessiondomain.AuthSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.got = append(f.got, v)
	s := session.Unify(v.Employee, v.Method, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &s, nil
}

type staticPending string

func (p staticPending) Pending(ctx context.Context) string { return string(p) }

func serve(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	r := gin.New()
	h.Register(r.Group("/v1/auth"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestVerifySMS_CompletesSession(t *testing.T) {
	v := &fakeVerifier{res: &verification.Result{Employee: ana, Method: sessiondomain.MethodSMS, ProviderSession: &idp.Session{ID: "ps1"}}}
	c := &fakeCompleter{}
	h := NewHandler(v, c, nil, "https://auth.acme.test", nil)

	w := serve(h, http.MethodPost, "/v1/auth/sms/verify", `{"phone":"5551234567","code":"123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	var out SignedIn
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if !out.Reload || out.Session == nil || out.Session.AuthMethod != sessiondomain.MethodSMS || out.Session.Employee.ID != "e1" {
		t.Errorf("body = %+v", out)
	}
	if len(c.got) != 1 || c.got[0].ProviderSessionID != "ps1" {
		t.Errorf("completer got %+v", c.got)
	}
	if v.method != sessiondomain.MethodSMS {
		t.Errorf("method = %q", v.method)
	}
}

func TestVerifyWhatsApp_UsesWhatsAppMethod(t *testing.T) {
	v := &fakeVerifier{res: &verification.Result{Employee: ana, Method: sessiondomain.MethodWhatsApp}}
	h := NewHandler(v, &fakeCompleter{}, nil, "", nil)
	if w := serve(h, http.MethodPost, "/v1/auth/whatsapp/verify", `{"phone":"5551234567","code":"123456"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if v.method != sessiondomain.MethodWhatsApp {
		t.Errorf("method = %q", v.method)
	}
}

func TestVerifyCode_Errors(t *testing.T) {
	tests := []struct {
		name      string
		verifyErr error
		doneErr   error
		status    int
		code      string
	}{
		{"wrong code", &verification.InvalidCodeError{AttemptsLeft: 2}, nil, http.StatusUnauthorized, "code_invalid"},
		{"expired", verification.ErrCodeExpired, nil, http.StatusGone, "code_expired"},
		{"exhausted", verification.ErrCodeExhausted, nil, http.StatusTooManyRequests, "code_exhausted"},
		{"format", verification.ErrInvalidCodeFormat, nil, http.StatusBadRequest, "invalid_code_format"},
		{"teardown", nil, session.ErrTeardownFailed, http.StatusServiceUnavailable, "sign_in_incomplete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{err: tt.verifyErr}
			if tt.verifyErr == nil {
				v.res = &verification.Result{Employee: ana, Method: sessiondomain.MethodSMS}
			}
			h := NewHandler(v, &fakeCompleter{err: tt.doneErr}, nil, "", nil)
			w := serve(h, http.MethodPost, "/v1/auth/sms/verify", `{"phone":"5551234567","code":"123456"}`)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var env httpx.Envelope
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil || env.Error == nil {
				t.Fatalf("body = %s", w.Body.String())
			}
			if env.Error.Code != tt.code {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.code)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	v := &fakeVerifier{res: &verification.Result{Employee: ana, Method: sessiondomain.MethodPassword}}
	h := NewHandler(v, &fakeCompleter{}, nil, "", nil)
	w := serve(h, http.MethodPost, "/v1/auth/password", `{"username":"ana","password":"hunter22"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"auth_method":"password"`) {
		t.Errorf("status = %d body %s", w.Code, w.Body.String())
	}

	v.res, v.err = nil, idp.ErrInvalidCredentials
	w = serve(h, http.MethodPost, "/v1/auth/password", `{"username":"ana","password":"nope"}`)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"invalid_credentials"`) {
		t.Errorf("status = %d body %s", w.Code, w.Body.String())
	}
}

func TestMagicLinkCallback(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		err      error
		location string
	}{
		{"relative target", "/expenses", nil, "/expenses"},
		{"no target", "", nil, "/"},
		{"foreign target", "https://evil.test/x", nil, "/"},
		{"used link", "", idp.ErrLinkUsed, "/signin?error=link_invalid"},
		{"other employee", "", verification.ErrPendingMismatch, "/signin?error=link_invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &fakeVerifier{err: tt.err}
			if tt.err == nil {
				v.res = &verification.Result{Employee: ana, Method: sessiondomain.MethodMagicLink, RedirectTo: tt.redirect}
			}
			c := &fakeCompleter{}
			h := NewHandler(v, c, staticPending("e1"), "https://auth.acme.test", nil)
			w := serve(h, http.MethodGet, "/v1/auth/magic-link/callback?token=abc", "")
			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d", w.Code)
			}
			if got := w.Header().Get("Location"); got != tt.location {
				t.Errorf("Location = %q, want %q", got, tt.location)
			}
			if v.pending != "e1" {
				t.Errorf("pending = %q", v.pending)
			}
			if tt.err == nil && len(c.got) != 1 {
				t.Errorf("completer calls = %d", len(c.got))
			}
			if tt.err != nil && len(c.got) != 0 {
				t.Error("failed link must not complete a session")
			}
		})
	}
}

func TestMagicLinkCallback_CompleteFailure(t *testing.T) {
	v := &fakeVerifier{res: &verification.Result{Employee: ana, Method: sessiondomain.MethodMagicLink}}
	h := NewHandler(v, &fakeCompleter{err: errors.New("redis down")}, nil, "", nil)
	w := serve(h, http.MethodGet, "/v1/auth/magic-link/callback?token=abc", "")
	if got := w.Header().Get("Location"); got != "/signin?error=internal" {
		t.Errorf("Location = %q", got)
	}
}
