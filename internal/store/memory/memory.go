// Package memory provides in-memory implementations of the repositories in
// package store. They follow the same error contract (store.ErrNotFound,
// store.ErrConflict) and are used by service and handler tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pawhouse/apiserver/internal/store"
	"github.com/pawhouse/apiserver/types"
)

// UserRepository is an in-memory user store with a unique email index.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]types.User
	byEmail map[string]string

	// Err, when set, is returned by every call.
	Err error
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return types.User{}, r.Err
	}
	user, ok := r.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return types.User{}, r.Err
	}
	id, ok := r.byEmail[email]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return types.User{}, r.Err
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return types.User{}, store.ErrConflict
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = user
	r.byEmail[user.Email] = user.ID
	return user, nil
}

func (r *UserRepository) UpdateLastConnection(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.LastConnection = &at
	r.byID[id] = user
	return nil
}

func (r *UserRepository) UpdateRole(_ context.Context, id string, role types.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	user, ok := r.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	r.byID[id] = user
	return nil
}

// Remove deletes a user. The SQL store has no equivalent; tests use it to
// simulate an account disappearing.
func (r *UserRepository) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.byID[id]; ok {
		delete(r.byEmail, user.Email)
		delete(r.byID, id)
	}
}

// AdoptionRepository is an in-memory adoption store that keeps insertion
// order.
type AdoptionRepository struct {
	mu    sync.RWMutex
	byID  map[string]types.Adoption
	order []string

	// Err, when set, is returned by every call.
	Err error
}

func NewAdoptionRepository() *AdoptionRepository {
	return &AdoptionRepository{byID: make(map[string]types.Adoption)}
}

func (r *AdoptionRepository) List(_ context.Context) ([]types.Adoption, error) {
	return r.filter(func(types.Adoption) bool { return true })
}

func (r *AdoptionRepository) ListByUser(_ context.Context, userID string) ([]types.Adoption, error) {
	return r.filter(func(a types.Adoption) bool { return a.UserID == userID })
}

func (r *AdoptionRepository) filter(keep func(types.Adoption) bool) ([]types.Adoption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return nil, r.Err
	}
	adoptions := make([]types.Adoption, 0, len(r.order))
	for _, id := range r.order {
		if adoption := r.byID[id]; keep(adoption) {
			adoptions = append(adoptions, adoption)
		}
	}
	return adoptions, nil
}

func (r *AdoptionRepository) Get(_ context.Context, id string) (types.Adoption, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.Err != nil {
		return types.Adoption{}, r.Err
	}
	adoption, ok := r.byID[id]
	if !ok {
		return types.Adoption{}, store.ErrNotFound
	}
	return adoption, nil
}

func (r *AdoptionRepository) Create(_ context.Context, adoption types.Adoption) (types.Adoption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return types.Adoption{}, r.Err
	}
	if _, exists := r.byID[adoption.ID]; exists {
		return types.Adoption{}, store.ErrConflict
	}
	now := time.Now().UTC()
	adoption.CreatedAt = now
	adoption.UpdatedAt = now
	r.byID[adoption.ID] = adoption
	r.order = append(r.order, adoption.ID)
	return adoption, nil
}

func (r *AdoptionRepository) Update(_ context.Context, id string, patch types.AdoptionPatch) (types.Adoption, error) {
	return r.modify(id, func(a *types.Adoption) {
		if patch.Status != nil {
			a.Status = *patch.Status
		}
		if patch.Notes != nil {
			a.Notes = *patch.Notes
		}
	})
}

func (r *AdoptionRepository) SetPhotoKey(_ context.Context, id, key string) (types.Adoption, error) {
	return r.modify(id, func(a *types.Adoption) {
		a.PhotoKey = key
	})
}

func (r *AdoptionRepository) modify(id string, apply func(*types.Adoption)) (types.Adoption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return types.Adoption{}, r.Err
	}
	adoption, ok := r.byID[id]
	if !ok {
		return types.Adoption{}, store.ErrNotFound
	}
	apply(&adoption)
	adoption.UpdatedAt = time.Now().UTC()
	r.byID[id] = adoption
	return adoption, nil
}

func (r *AdoptionRepository) Delete(_ context.Context, id string) (types.Adoption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return types.Adoption{}, r.Err
	}
	adoption, ok := r.byID[id]
	if !ok {
		return types.Adoption{}, store.ErrNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return adoption, nil
}

// Len reports how many adoptions are stored.
func (r *AdoptionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
