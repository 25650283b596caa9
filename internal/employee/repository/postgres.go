package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"workforce-auth/internal/employee/domain"
)

const employeeColumns = `e.id, e.organization_id, o.name, e.first_name, e.last_name,
	COALESCE(e.email, ''), COALESCE(e.phone, ''), COALESCE(e.username, ''),
	e.role, e.is_active, e.can_expense, e.created_at, e.updated_at`

const employeeFrom = ` FROM employees e JOIN organizations o ON o.id = e.organization_id`

// PostgresRepository reads employees joined with their organization.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an employee repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(s rowScanner, extra ...any) (*domain.Employee, error) {
	var e domain.Employee
	dest := []any{
		&e.ID, &e.OrganizationID, &e.OrganizationName, &e.FirstName, &e.LastName,
		&e.Email, &e.Phone, &e.Username, &e.Role, &e.Active, &e.CanExpense, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetByID returns the employee for id regardless of active flag, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+employeeFrom+` WHERE e.id = $1`, id)
	e, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// GetActiveByPhone returns the active employee with phone, nil if none, ErrAmbiguousAddress if several.
func (r *PostgresRepository) GetActiveByPhone(ctx context.Context, phone string) (*domain.Employee, error) {
	return r.getOneActive(ctx, `SELECT `+employeeColumns+employeeFrom+
		` WHERE e.phone = $1 AND e.is_active LIMIT 2`, phone)
}

// GetActiveByEmail returns the active employee with email, nil if none, ErrAmbiguousAddress if several.
func (r *PostgresRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	return r.getOneActive(ctx, `SELECT `+employeeColumns+employeeFrom+
		` WHERE lower(e.email) = lower($1) AND e.is_active LIMIT 2`, email)
}

func (r *PostgresRepository) getOneActive(ctx context.Context, query, arg string) (*domain.Employee, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var found *domain.Employee
	for rows.Next() {
		if found != nil {
			return nil, ErrAmbiguousAddress
		}
		found, err = scanEmployee(rows)
		if err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

// GetCredentials returns the employee and password hash for username, or nil if not found.
// The hash is empty when the employee has no password set.
func (r *PostgresRepository) GetCredentials(ctx context.Context, username string) (*domain.Employee, string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+employeeColumns+`, COALESCE(e.password_hash, '')`+employeeFrom+
		` WHERE lower(e.username) = lower($1)`, username)
	var hash string
	e, err := scanEmployee(row, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return e, hash, nil
}

// UpdatePhone sets the employee's E.164 phone.
func (r *PostgresRepository) UpdatePhone(ctx context.Context, id, phone string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE employees SET phone = $2, updated_at = $3 WHERE id = $1`,
		id, sql.NullString{String: phone, Valid: phone != ""}, time.Now().UTC())
	return err
}

// ListPushTokens returns device tokens for the employee, oldest first.
func (r *PostgresRepository) ListPushTokens(ctx context.Context, employeeID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT token FROM employee_push_tokens WHERE employee_id = $1 ORDER BY created_at`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tokens []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}

// CreateOrganization inserts an organization if it does not exist. Used by cmd/seed.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, id, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, name)
	return err
}

// Create inserts the employee with an optional bcrypt password hash. Used by cmd/seed.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Employee, passwordHash string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO employees
		(id, organization_id, first_name, last_name, email, phone, username, password_hash, role, is_active, can_expense, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.OrganizationID, e.FirstName, e.LastName,
		nullable(e.Email), nullable(e.Phone), nullable(e.Username), nullable(passwordHash),
		e.Role, e.Active, e.CanExpense, time.Now().UTC())
	return err
}

// AddPushToken registers a device token for the employee.
func (r *PostgresRepository) AddPushToken(ctx context.Context, employeeID, token, platform string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO employee_push_tokens (employee_id, token, platform)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`, employeeID, token, platform)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
