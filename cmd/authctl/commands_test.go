package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr"
	"workforce-auth/internal/session"
	sessiondomain "workforce-auth/internal/session/domain"
)

var alice = employeedomain.Snapshot{
	ID:             "e1",
	OrganizationID: "org1",
	FirstName:      "Alice",
	LastName:       "Ng",
	Email:          "alice@acme.test",
	Role:           "employee",
	Active:         true,
	Organization:   employeedomain.OrganizationRef{ID: "org1", Name: "Acme"},
}

// approvingBackend approves every session as soon as it is created.
type approvingBackend struct {
	*qr.Service
}

func (b approvingBackend) Create(ctx context.Context) (*qr.Ticket, error) {
	t, err := b.Service.Create(ctx)
	if err != nil {
		return nil, err
	}
	return t, b.Service.Approve(ctx, t.SessionID, alice)
}

func testEnv(t *testing.T) (*env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &env{
		globals: globals{StateFile: filepath.Join(t.TempDir(), "session.json")},
		stdout:  &out,
		stdin:   strings.NewReader(""),
		logger:  zap.NewNop(),
	}, &out
}

func TestLogin_SavesQRSession(t *testing.T) {
	e, out := testEnv(t)
	backend := approvingBackend{qr.NewService(qr.NewMemoryStore(nil), time.Minute, "http://auth.test", nil, nil, nil)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := login(ctx, e, backend, 0); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out.String(), "Signed in as Alice Ng (Acme)") {
		t.Errorf("output = %q", out.String())
	}

	s, err := session.NewFilePersister(e.StateFile).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s == nil || s.Employee.ID != "e1" || s.AuthMethod != sessiondomain.MethodQRCode {
		t.Errorf("saved session = %+v", s)
	}
}

func TestWhoamiAndLogout(t *testing.T) {
	e, out := testEnv(t)
	ctx := context.Background()

	if err := whoamiCommand().run(ctx, e, nil); err == nil || err.Error() != "not signed in" {
		t.Fatalf("whoami without session: err = %v", err)
	}

	auth := session.Unify(alice, sessiondomain.MethodPassword, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err := session.NewFilePersister(e.StateFile).Save(ctx, auth); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := whoamiCommand().run(ctx, e, nil); err != nil {
		t.Fatalf("whoami: %v", err)
	}
	for _, want := range []string{"Alice Ng <alice@acme.test>", "organization: Acme", "via password"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("whoami output missing %q: %q", want, out.String())
		}
	}

	if err := logoutCommand().run(ctx, e, nil); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := logoutCommand().run(ctx, e, nil); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if s, _ := session.NewFilePersister(e.StateFile).Load(ctx); s != nil {
		t.Errorf("session after logout = %+v", s)
	}
}

func TestSessionID(t *testing.T) {
	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{arg: "qr_abc_0123", want: "qr_abc_0123"},
		{arg: "https://auth.test/qr/approve?session=qr_abc_0123", want: "qr_abc_0123"},
		{arg: "https://auth.test/qr/approve", wantErr: true},
	}
	for _, tt := range tests {
		got, err := sessionID(tt.arg)
		if (err != nil) != tt.wantErr {
			t.Errorf("sessionID(%q) err = %v, wantErr %v", tt.arg, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("sessionID(%q) = %q, want %q", tt.arg, got, tt.want)
		}
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	err := run(context.Background(), []string{"frobnicate"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	if err == nil || !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(stderr.String(), "login") {
		t.Errorf("usage not printed: %q", stderr.String())
	}
}
