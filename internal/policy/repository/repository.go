package repository

import (
	"context"

	"workforce-auth/internal/policy/domain"
)

// Repository persists per-organization channel policies.
type Repository interface {
	// GetByOrg returns the organization's policy, or nil if it has none.
	GetByOrg(ctx context.Context, orgID string) (*domain.ChannelPolicy, error)
	Upsert(ctx context.Context, p *domain.ChannelPolicy) error
}
