package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pawhouse/apiserver/config"
	"github.com/pawhouse/apiserver/internal/db"
	"github.com/pawhouse/apiserver/internal/handlers"
	"github.com/pawhouse/apiserver/internal/mq"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/pawhouse/apiserver/internal/storage"
	"github.com/pawhouse/apiserver/internal/store"
)

// Services bundles the use-cases exposed over HTTP.
type Services struct {
	Auth      *services.AuthService
	Adoptions *services.AdoptionService
	// RateLimiter guards register and login when set.
	RateLimiter *handlers.RateLimiter
	// TrustProxyHeaders mounts chi's RealIP, so RemoteAddr, and with it the
	// rate limiter key, comes from X-Forwarded-For or X-Real-IP.
	TrustProxyHeaders bool
}

// Server wraps the HTTP server, router, and the connections it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	storage    *storage.Storage
	mq         *mq.MQ
	logger     *slog.Logger
}

// New connects the database and the optional storage and broker backends,
// and builds the router. ctx bounds background work such as rate limiter
// bookkeeping.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{logger: logger}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.db = dbConn

	hasher, err := services.NewPasswordHasher(cfg.Auth.PasswordHasher, cfg.Auth.BcryptCost)
	if err != nil {
		s.close()
		return nil, err
	}

	var adoptionOpts []services.AdoptionOption

	photos, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, err
	}
	if photos != nil {
		s.storage = photos
		adoptionOpts = append(adoptionOpts, services.WithPhotoStorage(photos))
		logger.Info("photo storage enabled", "backend", cfg.Storage.Backend, "bucket", photos.Bucket())
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, err
	}
	if queue != nil {
		s.mq = queue
		adoptionOpts = append(adoptionOpts, services.WithEventPublisher(queue, cfg.MQ.AdoptionChannel))
		logger.Info("adoption events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.AdoptionChannel)
	}

	userRepo := store.NewUserRepository(dbConn)
	adoptionRepo := store.NewAdoptionRepository(dbConn)
	tokens := services.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	s.router = NewRouter(Services{
		Auth:        services.NewAuthService(userRepo, hasher, tokens, logger),
		Adoptions:   services.NewAdoptionService(adoptionRepo, logger, adoptionOpts...),
		RateLimiter: handlers.NewRateLimiter(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst),

		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter mounts every route on a fresh chi router.
func NewRouter(svcs Services, logger *slog.Logger) *chi.Mux {
	authMiddleware := handlers.RequireAuth(svcs.Auth, logger)

	var limit func(http.Handler) http.Handler
	if svcs.RateLimiter != nil {
		limit = svcs.RateLimiter.Middleware
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if svcs.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/sessions", func(r chi.Router) {
		handlers.SessionRouter(r, svcs.Auth, authMiddleware, limit, logger)
	})
	router.Route("/api/adoptions", func(r chi.Router) {
		handlers.AdoptionRouter(r, svcs.Adoptions, authMiddleware, logger)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done, then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.logger.Warn("close mq", "error", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Warn("close storage", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close database", "error", err)
		}
	}
}
