package repository

import (
	"context"

	"workforce-auth/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListByEmployee returns the most recent entries for the employee, newest first.
	ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*domain.AuditLog, error)
}
