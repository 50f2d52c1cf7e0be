package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawhouse/apiserver/internal/store"
	"github.com/pawhouse/apiserver/types"
)

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72

	invalidCredentialsMessage = "invalid credentials"
)

// RegisterInput holds the fields of a sign-up request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Age       int
	Password  string
}

// LoginInput holds the fields of a sign-in request.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      types.User
}

// AuthService implements registration, login, and token resolution.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens *TokenManager
	logger *slog.Logger
	now    func() time.Time
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens *TokenManager, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Register creates a new account with role user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = normalizeEmail(in.Email)

	if in.FirstName == "" || in.LastName == "" || in.Email == "" || in.Password == "" {
		return types.User{}, validationError("missing required fields")
	}
	if in.Age < 1 {
		return types.User{}, validationError("age must be at least 1")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return types.User{}, validationError("invalid email")
	}
	if len(in.Password) < minPasswordLength {
		return types.User{}, validationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(in.Password) > maxPasswordLength {
		return types.User{}, validationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return types.User{}, conflictError("email already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check email: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Age:          in.Age,
		Role:         types.RoleUser,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictError("email already registered")
		}
		return types.User{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues a session token. Unknown email and
// wrong password fail with the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return LoginResult{}, validationError("missing credentials")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, unauthorizedError(invalidCredentialsMessage)
		}
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
		}
		return LoginResult{}, unauthorizedError(invalidCredentialsMessage)
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastConnection(ctx, user.ID, now); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, unauthorizedError(invalidCredentialsMessage)
		}
		return LoginResult{}, fmt.Errorf("update last connection: %w", err)
	}
	user.LastConnection = &now

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// ResolveCurrentUser maps a bearer token to the user it was issued for.
func (s *AuthService) ResolveCurrentUser(ctx context.Context, token string) (types.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return types.User{}, unauthorizedError("missing token")
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, &Error{Kind: ErrUnauthorized, Message: "invalid or expired token", Err: err}
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, notFoundError("user not found")
		}
		return types.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Logout acknowledges a sign-out. Tokens are stateless and stay valid until
// they expire.
func (s *AuthService) Logout(ctx context.Context) {
	s.logger.DebugContext(ctx, "logout acknowledged")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
