package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/pawhouse/apiserver/types"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxJSONBodyBytes = 1 << 20
)

type contextKey string

const contextUserKey contextKey = "user"

// Envelope is the body of every API response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// CurrentUser returns the user attached by RequireAuth.
func CurrentUser(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	return user, ok
}

func withCurrentUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// NotFound answers unknown routes with the error envelope.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}

// MethodNotAllowed answers known routes hit with the wrong verb.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, payload any) {
	writeJSON(w, status, Envelope{Status: statusSuccess, Message: message, Payload: payload})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Status: statusError, Message: message})
}

// writeServiceError maps a service error to its status. Anything that is not
// a services.Error is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		switch {
		case errors.Is(svcErr.Kind, services.ErrValidation):
			writeError(w, http.StatusBadRequest, svcErr.Message)
			return
		case errors.Is(svcErr.Kind, services.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, svcErr.Message)
			return
		case errors.Is(svcErr.Kind, services.ErrConflict):
			writeError(w, http.StatusConflict, svcErr.Message)
			return
		case errors.Is(svcErr.Kind, services.ErrNotFound):
			writeError(w, http.StatusNotFound, svcErr.Message)
			return
		}
	}
	if errors.Is(err, services.ErrPhotoStorageDisabled) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}

	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}
