package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pawhouse/apiserver/internal/handlers"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/pawhouse/apiserver/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestRouter(t *testing.T, limiter *handlers.RateLimiter, trustProxy bool) *chi.Mux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := services.NewTokenManager("test-secret", "pawhouse", time.Hour)
	return NewRouter(Services{
		Auth:        services.NewAuthService(memory.NewUserRepository(), services.NewBcryptHasher(bcrypt.MinCost), tokens, logger),
		Adoptions:   services.NewAdoptionService(memory.NewAdoptionRepository(), logger),
		RateLimiter: limiter,

		TrustProxyHeaders: trustProxy,
	}, logger)
}

func serve(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return serveFrom(router, method, path, body, "")
}

// serveFrom sends the request from a fixed socket address, with forwardedFor
// as X-Forwarded-For when non-empty.
func serveFrom(router http.Handler, method, path string, body any, forwardedFor string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:4000"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	rec := serve(newTestRouter(t, nil, false), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, nil, false)

	rec := serve(router, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"route not found"}`, rec.Body.String())

	rec = serve(router, http.MethodPatch, "/api/adoptions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_WritesRequireAuth(t *testing.T) {
	router := newTestRouter(t, nil, false)

	rec := serve(router, http.MethodPost, "/api/adoptions", map[string]string{"petName": "Luna", "petType": "Cat", "adopter": "Ana"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/api/adoptions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimitsLogin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := newTestRouter(t, handlers.NewRateLimiter(ctx, 0.001, 1), false)

	login := map[string]string{"email": "m@x.com", "password": "secret1"}
	rec := serve(router, http.MethodPost, "/api/sessions/login", login)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodPost, "/api/sessions/login", login)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = serve(router, http.MethodGet, "/api/adoptions", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "reads are not rate limited")
}

func TestRouter_RateLimitIgnoresForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := newTestRouter(t, handlers.NewRateLimiter(ctx, 0.001, 1), false)

	login := map[string]string{"email": "m@x.com", "password": "secret1"}
	limited := 0
	for i := 0; i < 20; i++ {
		rec := serveFrom(router, http.MethodPost, "/api/sessions/login", login, fmt.Sprintf("10.0.0.%d", i))
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited, "rotating X-Forwarded-For must not refill the bucket")
}

func TestRouter_TrustedProxyHeadersKeyByClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := newTestRouter(t, handlers.NewRateLimiter(ctx, 0.001, 1), true)

	login := map[string]string{"email": "m@x.com", "password": "secret1"}
	rec := serveFrom(router, http.MethodPost, "/api/sessions/login", login, "10.0.0.1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = serveFrom(router, http.MethodPost, "/api/sessions/login", login, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = serveFrom(router, http.MethodPost, "/api/sessions/login", login, "10.0.0.2")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "each forwarded client has its own bucket")
}

func TestRouter_RecoversPanics(t *testing.T) {
	router := newTestRouter(t, nil, false)
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(router, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
