package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexedwards/scs/v2"

	"workforce-auth/internal/session/domain"
)

// Key is the one well-known key the AuthSession is stored under.
const Key = "workforce.auth_session"

// deviceKey holds a random id for the browser. It survives sign-in and sign-out.
const deviceKey = "workforce.device"

// pendingKey holds the employee a magic link was requested for, until the link comes back.
const pendingKey = "workforce.pending_employee"

// Persister stores the current AuthSession. Save replaces any prior value; Load returns (nil, nil) when
// nobody is signed in.
type Persister interface {
	Save(ctx context.Context, s domain.AuthSession) error
	Load(ctx context.Context) (*domain.AuthSession, error)
	Clear(ctx context.Context) error
}

// SCSPersister keeps the AuthSession in the browser's server-side session. The request context must have
// passed through the manager's LoadAndSave middleware.
type SCSPersister struct {
	sm *scs.SessionManager
}

func NewSCSPersister(sm *scs.SessionManager) *SCSPersister {
	return &SCSPersister{sm: sm}
}

// Save renews the session token before storing so a sign-in never reuses a pre-login token.
func (p *SCSPersister) Save(ctx context.Context, s domain.AuthSession) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := p.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("session: renew token: %w", err)
	}
	p.sm.Put(ctx, Key, string(b))
	p.sm.Remove(ctx, pendingKey)
	return nil
}

func (p *SCSPersister) Load(ctx context.Context) (*domain.AuthSession, error) {
	raw := p.sm.GetString(ctx, Key)
	if raw == "" {
		return nil, nil
	}
	var s domain.AuthSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

func (p *SCSPersister) Clear(ctx context.Context) error {
	p.sm.Remove(ctx, Key)
	p.sm.Remove(ctx, pendingKey)
	return p.sm.RenewToken(ctx)
}

// SetPending remembers which employee requested a magic link from this browser.
func (p *SCSPersister) SetPending(ctx context.Context, employeeID string) {
	p.sm.Put(ctx, pendingKey, employeeID)
}

// Pending returns the employee stored by SetPending, or "".
func (p *SCSPersister) Pending(ctx context.Context) string {
	return p.sm.GetString(ctx, pendingKey)
}

// DeviceKey returns the browser's id, creating it on first use.
func (p *SCSPersister) DeviceKey(ctx context.Context) (string, error) {
	if k := p.sm.GetString(ctx, deviceKey); k != "" {
		return k, nil
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: device key: %w", err)
	}
	k := hex.EncodeToString(b)
	p.sm.Put(ctx, deviceKey, k)
	return k, nil
}

// FilePersister keeps the AuthSession in a JSON file holding a single key. Used by authctl.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the state file location.
func (p *FilePersister) Path() string { return p.path }

// Save writes the file atomically with owner-only permissions.
func (p *FilePersister) Save(ctx context.Context, s domain.AuthSession) error {
	b, err := json.MarshalIndent(map[string]domain.AuthSession{Key: s}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

func (p *FilePersister) Load(ctx context.Context) (*domain.AuthSession, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]domain.AuthSession
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", p.path, err)
	}
	s, ok := doc[Key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (p *FilePersister) Clear(ctx context.Context) error {
	err := os.Remove(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
