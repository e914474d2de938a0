package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Mindburn-Labs/archgate/pkg/acr"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ACRService is the slice of the ACR workflow the API drives.
type ACRService interface {
	Create(ctx context.Context, opts acr.CreateOptions) (*acr.ACR, error)
	Get(ctx context.Context, id string) (*acr.ACR, error)
	ListPending(ctx context.Context) ([]*acr.ACR, error)
	Review(ctx context.Context, opts acr.ReviewOptions) (*acr.ReviewResult, error)
}

// Catalog is the read side of the constraint registry.
type Catalog interface {
	Query(ctx context.Context, f constraints.Filter) constraints.QueryResult
	GetByID(ctx context.Context, id string) (constraints.Constraint, error)
	Rejected(ctx context.Context) []constraints.Rejected
}

// Server wires handlers to their dependencies.
type Server struct {
	acrs     ACRService
	catalog  Catalog
	auth     *Authenticator
	limiter  *RateLimiter
	recorder HTTPRecorder
	metrics  http.Handler
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAuthenticator requires bearer tokens on mutating routes.
func WithAuthenticator(a *Authenticator) Option { return func(s *Server) { s.auth = a } }

// WithRateLimiter applies per-client rate limiting to every route.
func WithRateLimiter(rl *RateLimiter) Option { return func(s *Server) { s.limiter = rl } }

// WithMetrics records per-route request metrics on rec and serves handler on
// /metrics.
func WithMetrics(rec HTTPRecorder, handler http.Handler) Option {
	return func(s *Server) {
		s.recorder = rec
		s.metrics = handler
	}
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// NewServer returns a Server over the ACR workflow and constraint catalog.
func NewServer(acrs ACRService, catalog Catalog, opts ...Option) *Server {
	s := &Server{
		acrs:    acrs,
		catalog: catalog,
		logger:  slog.Default().With("component", "api"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, Recover)
	if s.recorder != nil {
		r.Use(Instrument(s.recorder))
	}
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorR(w, r, http.StatusNotFound, "Not Found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteMethodNotAllowed(w)
	})

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/acrs", func(r chi.Router) {
			r.Get("/pending", s.handleListPending)
			r.Get("/{id}", s.handleGetACR)
			r.Group(func(r chi.Router) {
				r.Use(RequireAuth(s.auth))
				r.Post("/", s.handleCreateACR)
				r.Post("/review", s.handleReviewACR)
			})
		})
		r.Route("/constraints", func(r chi.Router) {
			r.Get("/", s.handleQueryConstraints)
			r.Get("/rejected", s.handleRejectedConstraints)
			r.Get("/{id}", s.handleGetConstraint)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.clock().UTC().Format(time.RFC3339),
	})
}
