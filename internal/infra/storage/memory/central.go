package memory

import (
	"context"
	"sync"

	"github.com/ahrav/docflow/internal/domain/callback"
	"github.com/ahrav/docflow/internal/domain/tenant"
)

// TenantStore is an in-memory central tenant registry.
type TenantStore struct {
	mu   sync.RWMutex
	rows map[string]*tenant.Tenant
}

// NewTenantStore creates an empty tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{rows: make(map[string]*tenant.Tenant)}
}

var _ tenant.Repository = (*TenantStore)(nil)

// Create persists a new tenant, rejecting duplicate slugs.
func (s *TenantStore) Create(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.Slug == t.Slug {
			return tenant.ErrTenantAlreadyExists
		}
	}
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

// Update modifies an existing tenant.
func (s *TenantStore) Update(ctx context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[t.ID]; !ok {
		return tenant.ErrTenantNotFound
	}
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

// FindBySlug retrieves a tenant by slug.
func (s *TenantStore) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.rows {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

// FindByID retrieves a tenant by id.
func (s *TenantStore) FindByID(ctx context.Context, id string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

// ListActive retrieves all active, non-deleted tenants.
func (s *TenantStore) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*tenant.Tenant
	for _, t := range s.rows {
		if t.IsActive() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CallbackStore is an in-memory central callback mapping store.
type CallbackStore struct {
	mu   sync.RWMutex
	rows map[string]*callback.Mapping
}

// NewCallbackStore creates an empty callback store.
func NewCallbackStore() *CallbackStore {
	return &CallbackStore{rows: make(map[string]*callback.Mapping)}
}

var _ callback.Repository = (*CallbackStore)(nil)

// Upsert persists the mapping, idempotent on transaction id: an existing row
// is left untouched.
func (s *CallbackStore) Upsert(ctx context.Context, m *callback.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.TransactionID]; ok {
		return nil
	}
	cp := *m
	s.rows[m.TransactionID] = &cp
	return nil
}

// FindByTransactionID retrieves a mapping.
func (s *CallbackStore) FindByTransactionID(ctx context.Context, transactionID string) (*callback.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[transactionID]
	if !ok {
		return nil, callback.ErrMappingNotFound
	}
	cp := *m
	return &cp, nil
}

// Update modifies an existing mapping.
func (s *CallbackStore) Update(ctx context.Context, m *callback.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[m.TransactionID]; !ok {
		return callback.ErrMappingNotFound
	}
	cp := *m
	s.rows[m.TransactionID] = &cp
	return nil
}
