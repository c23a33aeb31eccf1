package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu         sync.RWMutex
	principals map[string]Principal
	byAddress  map[string]string
}

// NewMemoryRepository builds an in-memory principal store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		principals: make(map[string]Principal),
		byAddress:  make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, p Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddress[p.Address]; exists {
		return ErrPrincipalExists
	}
	r.principals[p.ID] = p
	r.byAddress[p.Address] = p.ID
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAddress[address]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return r.principals[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return Principal{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) UpdateDevice(_ context.Context, id, deviceID string) error {
	return r.update(id, func(p *Principal) { p.DeviceID = deviceID })
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	return r.update(id, func(p *Principal) { p.TokenVersion = version })
}

func (r *memoryRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(p *Principal) { p.LastLogin = at })
}

func (r *memoryRepository) update(id string, fn func(p *Principal)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.principals[id]
	if !ok {
		return ErrNotFound
	}
	fn(&p)
	r.principals[id] = p
	return nil
}
