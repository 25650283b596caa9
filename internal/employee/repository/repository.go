package repository

import (
	"context"
	"errors"

	"workforce-auth/internal/employee/domain"
)

// ErrAmbiguousAddress is returned when more than one active employee shares a phone or email.
var ErrAmbiguousAddress = errors.New("employee: more than one active employee has this address")

// Repository is the employee directory. Lookups return (nil, nil) when no row matches
// and an error only for database failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Employee, error)
	// GetActiveByPhone returns the single active employee with the E.164 phone.
	GetActiveByPhone(ctx context.Context, phone string) (*domain.Employee, error)
	// GetActiveByEmail returns the single active employee with the email (case-insensitive).
	GetActiveByEmail(ctx context.Context, email string) (*domain.Employee, error)
	// GetCredentials returns the employee with the username and its bcrypt password hash.
	GetCredentials(ctx context.Context, username string) (*domain.Employee, string, error)
	UpdatePhone(ctx context.Context, id, phone string) error
	// ListPushTokens returns the FCM device tokens registered for the employee.
	ListPushTokens(ctx context.Context, employeeID string) ([]string, error)
}
