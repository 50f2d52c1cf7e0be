package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pawhouse/apiserver/internal/services"
)

// SessionHandler provides the register/login/current/logout endpoints.
type SessionHandler struct {
	authService *services.AuthService
	logger      *slog.Logger
}

// NewSessionHandler constructs a SessionHandler with the provided dependencies.
func NewSessionHandler(authService *services.AuthService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{authService: authService, logger: logger}
}

// SessionRouter registers session routes on the given router. limit, when
// non-nil, guards register and login.
func SessionRouter(
	r chi.Router,
	authService *services.AuthService,
	authMiddleware func(http.Handler) http.Handler,
	limit func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	handler := NewSessionHandler(authService, logger)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
	})
	r.With(authMiddleware).Get("/current", handler.Current)
	r.Post("/logout", handler.Logout)
}

// RequireAuth resolves the bearer token to a user and stores it in the
// request context. Requests without a valid token never reach next.
func RequireAuth(authService *services.AuthService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, err := authService.ResolveCurrentUser(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, services.ErrUnauthorized) || errors.Is(err, services.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeServiceError(w, r, logger, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withCurrentUser(r.Context(), user)))
		})
	}
}

type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	Password  string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates a new user account.
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.authService.Register(r.Context(), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Age:       req.Age,
		Password:  req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "user registered", user)
}

// Login verifies credentials and returns a session token.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	result, err := h.authService.Login(r.Context(), services.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{
		Status:  statusSuccess,
		Message: "login successful",
		Token:   result.Token,
		Payload: result.User,
	})
}

// Current returns the authenticated user.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeSuccess(w, http.StatusOK, "", user)
}

// Logout acknowledges a sign-out. The token itself stays valid until it
// expires.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.Logout(r.Context())
	writeSuccess(w, http.StatusOK, "logged out", nil)
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
