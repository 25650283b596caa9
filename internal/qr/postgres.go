package qr

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	employeedomain "workforce-auth/internal/employee/domain"
	"workforce-auth/internal/qr/domain"
)

// PostgresStore keeps QR sessions in the qr_sessions table. The conditional UPDATE and
// DELETE ... RETURNING statements make both transitions atomic.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qr_sessions (id, status, employee_data, created_at, expires_at) VALUES ($1, $2, NULL, $3, $4)`,
		sess.ID, string(sess.Status), sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("qr: create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var (
		status    string
		employee  []byte
		createdAt time.Time
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, employee_data, created_at, expires_at FROM qr_sessions WHERE id = $1`, id,
	).Scan(&status, &employee, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("qr: get: %w", err)
	}
	return decodeRow(id, status, employee, createdAt, expiresAt)
}

func (s *PostgresStore) Authenticate(ctx context.Context, id string, employee employeedomain.Snapshot, now time.Time) error {
	b, err := json.Marshal(employee)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE qr_sessions SET status = 'authenticated', employee_data = $2
		 WHERE id = $1 AND status = 'waiting' AND expires_at > $3`,
		id, b, now,
	)
	if err != nil {
		return fmt.Errorf("qr: authenticate: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("qr: authenticate: %w", err)
	} else if n == 1 {
		return nil
	}
	return s.classify(ctx, id, now)
}

// classify explains why a conditional update matched nothing.
func (s *PostgresStore) classify(ctx context.Context, id string, now time.Time) error {
	sess, err := s.Get(ctx, id)
	switch {
	case err != nil:
		return err
	case sess == nil:
		return ErrNotFound
	case sess.Status == domain.StatusExpired || sess.Expired(now):
		return ErrExpired
	}
	return ErrNotWaiting
}

func (s *PostgresStore) Claim(ctx context.Context, id string) (*domain.Session, error) {
	var (
		employee  []byte
		createdAt time.Time
		expiresAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM qr_sessions WHERE id = $1 AND status = 'authenticated'
		 RETURNING employee_data, created_at, expires_at`, id,
	).Scan(&employee, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		sess, gerr := s.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if sess == nil {
			return nil, ErrNotFound
		}
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("qr: claim: %w", err)
	}
	return decodeRow(id, string(domain.StatusAuthenticated), employee, createdAt, expiresAt)
}

func (s *PostgresStore) Expire(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE qr_sessions SET status = 'expired' WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM qr_sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes sessions that expired before cutoff and returns how many were removed.
func (s *PostgresStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qr_sessions WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func decodeRow(id, status string, employee []byte, createdAt, expiresAt time.Time) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        id,
		Status:    domain.Status(status),
		CreatedAt: createdAt.UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if len(employee) > 0 {
		var snap employeedomain.Snapshot
		if err := json.Unmarshal(employee, &snap); err != nil {
			return nil, fmt.Errorf("qr: decode employee: %w", err)
		}
		sess.Employee = &snap
	}
	return sess, nil
}
