package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/pawhouse/apiserver/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	router    *chi.Mux
	users     *memory.UserRepository
	adoptions *memory.AdoptionRepository
	tokens    *services.TokenManager
}

func newTestAPI(t *testing.T, opts ...services.AdoptionOption) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := memory.NewUserRepository()
	adoptions := memory.NewAdoptionRepository()
	tokens := services.NewTokenManager("test-secret", "pawhouse", time.Hour)
	authService := services.NewAuthService(users, services.NewBcryptHasher(bcrypt.MinCost), tokens, logger)
	adoptionService := services.NewAdoptionService(adoptions, logger, opts...)

	authMiddleware := RequireAuth(authService, logger)
	router := chi.NewRouter()
	router.Route("/api/sessions", func(r chi.Router) {
		SessionRouter(r, authService, authMiddleware, nil, logger)
	})
	router.Route("/api/adoptions", func(r chi.Router) {
		AdoptionRouter(r, adoptionService, authMiddleware, logger)
	})

	return &testAPI{router: router, users: users, adoptions: adoptions, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env Envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

// login registers a fresh account and returns its token.
func (a *testAPI) login(t *testing.T, email string) string {
	t.Helper()
	rec, _ := a.do(t, http.MethodPost, "/api/sessions/register", "", map[string]any{
		"first_name": "Test",
		"last_name":  "User",
		"email":      email,
		"age":        30,
		"password":   "secret1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, env := a.do(t, http.MethodPost, "/api/sessions/login", "", map[string]any{
		"email":    email,
		"password": "secret1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, env.Token)
	return env.Token
}

// payloadMap re-decodes an envelope payload as a JSON object.
func payloadMap(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	m, ok := env.Payload.(map[string]any)
	require.True(t, ok, "payload is %T", env.Payload)
	return m
}

func TestWriteServiceError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		err     error
		status  int
		message string
	}{
		{&services.Error{Kind: services.ErrValidation, Message: "bad input"}, http.StatusBadRequest, "bad input"},
		{&services.Error{Kind: services.ErrUnauthorized, Message: "invalid credentials"}, http.StatusUnauthorized, "invalid credentials"},
		{&services.Error{Kind: services.ErrConflict, Message: "email already registered"}, http.StatusConflict, "email already registered"},
		{&services.Error{Kind: services.ErrNotFound, Message: "adoption not found"}, http.StatusNotFound, "adoption not found"},
		{fmt.Errorf("wrapped: %w", &services.Error{Kind: services.ErrNotFound, Message: "gone"}), http.StatusNotFound, "gone"},
		{services.ErrPhotoStorageDisabled, http.StatusNotImplemented, "photo storage is not configured"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		writeServiceError(rec, req, logger, tc.err)

		assert.Equal(t, tc.status, rec.Code)
		var env Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, tc.message, env.Message)
		assert.NotContains(t, rec.Body.String(), "pq:")
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
