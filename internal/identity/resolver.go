// Package identity resolves a normalized phone or email to the single active employee it belongs to.
// Resolution gates every channel: nothing is sent to an address that does not resolve.
package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"workforce-auth/internal/contact"
	"workforce-auth/internal/employee/domain"
	"workforce-auth/internal/employee/repository"
)

var (
	// ErrEmployeeNotFound is terminal for the channel: no active employee owns the address.
	ErrEmployeeNotFound = errors.New("no active employee found")
	// ErrLookupFailed wraps a directory failure. It is transient and safe to retry.
	ErrLookupFailed = errors.New("employee lookup failed")
)

// Directory is the minimal employee repository needed by the resolver.
type Directory interface {
	GetActiveByPhone(ctx context.Context, phone string) (*domain.Employee, error)
	GetActiveByEmail(ctx context.Context, email string) (*domain.Employee, error)
}

// Resolver looks up active employees by address.
type Resolver struct {
	dir    Directory
	logger *zap.Logger
}

// NewResolver returns a Resolver over dir. logger may be nil.
func NewResolver(dir Directory, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: dir, logger: logger}
}

// ResolvePhone returns the active employee with the E.164 phone.
func (r *Resolver) ResolvePhone(ctx context.Context, phone string) (*domain.Employee, error) {
	e, err := r.dir.GetActiveByPhone(ctx, phone)
	return r.result(e, err, zap.String("phone", contact.MaskPhone(phone)))
}

// ResolveEmail returns the active employee with the normalized email.
func (r *Resolver) ResolveEmail(ctx context.Context, email string) (*domain.Employee, error) {
	e, err := r.dir.GetActiveByEmail(ctx, email)
	return r.result(e, err, zap.String("email", contact.MaskEmail(email)))
}

func (r *Resolver) result(e *domain.Employee, err error, addr zap.Field) (*domain.Employee, error) {
	switch {
	case errors.Is(err, repository.ErrAmbiguousAddress):
		r.logger.Warn("identity: address shared by several active employees", addr)
		return nil, ErrEmployeeNotFound
	case err != nil:
		r.logger.Error("identity: directory lookup failed", addr, zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	case e == nil || !e.Active:
		return nil, ErrEmployeeNotFound
	}
	return e, nil
}
