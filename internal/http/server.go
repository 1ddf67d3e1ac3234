package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"

	"github.com/Clark-Hu/comment-ratings/internal/config"
	"github.com/Clark-Hu/comment-ratings/internal/ratings"
	"github.com/Clark-Hu/comment-ratings/internal/registry"
	"github.com/Clark-Hu/comment-ratings/internal/repository"
	"github.com/Clark-Hu/comment-ratings/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	store    *store.Store
	repo     *repository.Repository
	ratings  *ratings.Service
	registry *registry.Registry
	cookies  *securecookie.SecureCookie
	logger   *log.Logger
	router   chi.Router
	httpSrv  *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, repo *repository.Repository, svc *ratings.Service, reg *registry.Registry, logger *log.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		repo:     repo,
		ratings:  svc,
		registry: reg,
		logger:   logger,
		router:   r,
	}
	if cfg.CookieHashKey != "" {
		s.cookies = securecookie.New([]byte(cfg.CookieHashKey), nil).MaxAge(cfg.CookieMaxAgeSecs)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/comments", func(r chi.Router) {
		r.Get("/", s.handleListComments)
		r.Post("/", s.handleCreateComment)
		r.Route("/{pk}", func(r chi.Router) {
			r.Get("/", s.handleGetComment)
			r.Get("/ratings/{field}", s.handleGetRating)
			r.Get("/ratings/{field}/votes", s.handleListVotes)
			r.HandleFunc("/vote/{field}/{score}", s.handleVoteByField)
		})
	})
	s.router.HandleFunc("/comment-vote/{pk}/{score}", s.voteHandler(s.registry.Comments, s.registry.Rating))
	s.router.HandleFunc("/comment-stars/{pk}/{score}", s.voteHandler(s.registry.Comments, s.registry.Stars))
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start boots the HTTP server asynchronously.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
