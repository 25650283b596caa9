package repository

import (
	"context"
	"sort"
	"sync"

	"workforce-auth/internal/audit/domain"
)

// MemoryRepository keeps audit logs in process memory for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *a
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRepository) ListByEmployee(ctx context.Context, employeeID string, limit int) ([]*domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []*domain.AuditLog
	for _, a := range r.entries {
		if a.EmployeeID == employeeID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
