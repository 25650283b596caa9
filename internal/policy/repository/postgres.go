package repository

import (
	"context"
	"database/sql"
	"errors"

	"workforce-auth/internal/policy/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByOrg returns the policy for orgID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByOrg(ctx context.Context, orgID string) (*domain.ChannelPolicy, error) {
	var p domain.ChannelPolicy
	err := r.db.QueryRowContext(ctx,
		`SELECT org_id, rules, updated_at FROM org_channel_policies WHERE org_id = $1`, orgID,
	).Scan(&p.OrgID, &p.Rules, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Upsert creates or replaces the organization's policy.
func (r *PostgresRepository) Upsert(ctx context.Context, p *domain.ChannelPolicy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO org_channel_policies (org_id, rules, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (org_id) DO UPDATE SET rules = EXCLUDED.rules, updated_at = EXCLUDED.updated_at`,
		p.OrgID, p.Rules, p.UpdatedAt,
	)
	return err
}
