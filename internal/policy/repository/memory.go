package repository

import (
	"context"
	"sync"

	"workforce-auth/internal/policy/domain"
)

// MemoryRepository keeps policies in process. Err, when set, is returned by every call.
type MemoryRepository struct {
	mu       sync.Mutex
	policies map[string]domain.ChannelPolicy
	Err      error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{policies: make(map[string]domain.ChannelPolicy)}
}

func (r *MemoryRepository) GetByOrg(ctx context.Context, orgID string) (*domain.ChannelPolicy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	p, ok := r.policies[orgID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, p *domain.ChannelPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.policies[p.OrgID] = *p
	return nil
}
