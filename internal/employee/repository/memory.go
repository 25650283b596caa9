package repository

import (
	"context"
	"strings"
	"sync"

	"workforce-auth/internal/employee/domain"
)

// MemoryRepository is an in-process employee directory for tests and local runs without Postgres.
type MemoryRepository struct {
	mu        sync.Mutex
	employees map[string]*domain.Employee
	hashes    map[string]string
	tokens    map[string][]string
	// Err, when set, is returned by every lookup. Simulates a directory outage.
	Err error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		employees: make(map[string]*domain.Employee),
		hashes:    make(map[string]string),
		tokens:    make(map[string][]string),
	}
}

// Add stores a copy of e with an optional password hash.
func (r *MemoryRepository) Add(e *domain.Employee, passwordHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.employees[e.ID] = &cp
	if passwordHash != "" {
		r.hashes[e.ID] = passwordHash
	}
}

// AddPushToken registers a device token for the employee.
func (r *MemoryRepository) AddPushToken(employeeID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[employeeID] = append(r.tokens[employeeID], token)
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	e, ok := r.employees[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryRepository) GetActiveByPhone(ctx context.Context, phone string) (*domain.Employee, error) {
	return r.findActive(func(e *domain.Employee) bool { return e.Phone != "" && e.Phone == phone })
}

func (r *MemoryRepository) GetActiveByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	return r.findActive(func(e *domain.Employee) bool { return e.Email != "" && strings.EqualFold(e.Email, email) })
}

func (r *MemoryRepository) findActive(match func(*domain.Employee) bool) (*domain.Employee, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var found *domain.Employee
	for _, e := range r.employees {
		if !e.Active || !match(e) {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousAddress
		}
		found = e
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *MemoryRepository) GetCredentials(ctx context.Context, username string) (*domain.Employee, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, "", r.Err
	}
	for id, e := range r.employees {
		if e.Username != "" && strings.EqualFold(e.Username, username) {
			cp := *e
			return &cp, r.hashes[id], nil
		}
	}
	return nil, "", nil
}

func (r *MemoryRepository) UpdatePhone(ctx context.Context, id, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if e, ok := r.employees[id]; ok {
		e.Phone = phone
	}
	return nil
}

func (r *MemoryRepository) ListPushTokens(ctx context.Context, employeeID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return append([]string(nil), r.tokens[employeeID]...), nil
}
