package repository

import (
	"context"
	"database/sql"

	"workforce-auth/internal/audit/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := sql.NullString{String: a.Metadata, Valid: a.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_audit_log (id, org_id, employee_id, action, channel, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.OrgID, a.EmployeeID, a.Action, a.Channel, a.IP, meta, a.CreatedAt,
	)
	return err
}

// ListByEmployee returns up to limit entries for employeeID, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, employee_id, action, channel, ip, metadata, created_at
		 FROM auth_audit_log WHERE employee_id = $1 ORDER BY created_at DESC LIMIT $2`,
		employeeID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var a domain.AuditLog
		var meta sql.NullString
		if err := rows.Scan(&a.ID, &a.OrgID, &a.EmployeeID, &a.Action, &a.Channel, &a.IP, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Metadata = meta.String
		out = append(out, &a)
	}
	return out, rows.Err()
}
