package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pawhouse/apiserver/internal/store"
	"github.com/pawhouse/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateLastConnection(ctx context.Context, id string, at time.Time) error
	UpdateRole(ctx context.Context, id string, role types.Role) error
}

// UserService encapsulates user administration use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	user, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("user not found")
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("user not found")
		}
		return types.User{}, err
	}
	return user, nil
}

// SetRole changes the role of the user with the given email.
func (s *UserService) SetRole(ctx context.Context, email string, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, validationError(fmt.Sprintf("invalid role %q", role))
	}

	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return types.User{}, err
	}
	if err := s.repo.UpdateRole(ctx, user.ID, role); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("user not found")
		}
		return types.User{}, err
	}

	user.Role = role
	return user, nil
}
