// Package http exposes users, transaction sync and spending reports as a
// JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"spendcast/internal/amqp"
	"spendcast/internal/log"
	"spendcast/internal/middleware/ratelimit"
	"spendcast/internal/middleware/security"
	"spendcast/internal/middleware/trace"
	"spendcast/internal/services"
	"spendcast/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// RefreshPublisher queues background history refreshes. *amqp.Client
// implements it.
type RefreshPublisher interface {
	PublishHistoryRefresh(ctx context.Context, msg *amqp.HistoryRefreshMessage) error
}

// Dependencies are the services the handlers call. Queue may be nil, in
// which case syncs run inline.
type Dependencies struct {
	Store   store.Store
	Sync    *services.SyncService
	Reports *services.ReportService
	Queue   RefreshPublisher
}

// Options configure the transport.
type Options struct {
	Addr               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	TrustedProxies     []string
}

type Server struct {
	http.Server
	deps     Dependencies
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIP
	logger   *log.Logger
}

// NewServer wires routes and middleware. Call Shutdown to release the rate
// limiter.
func NewServer(opts Options, deps Dependencies, logger *log.Logger) (*Server, error) {
	if deps.Store == nil || deps.Sync == nil || deps.Reports == nil {
		return nil, fmt.Errorf("store, sync and report services are required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	s := &Server{
		deps:     deps,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		clientIP: clientIP,
		logger:   logger.WithComponent(log.ComponentHTTP),
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Reports may refresh from upstream before answering
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	origins := opts.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", trace.HeaderRequestID},
		ExposedHeaders: []string{trace.HeaderRequestID, "Retry-After"},
		MaxAge:         300,
	}).Handler)
	r.Use(trace.NewMiddleware(s.logger, s.clientIP.Extract).Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.clientIP.Extract, s.handleRateLimited))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", s.handleCreateUser)
			r.Get("/", s.handleListUsers)

			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", s.handleGetUser)
				r.Delete("/", s.handleDeleteUser)
				r.Get("/transactions", s.handleListTransactions)
				r.Post("/transactions/sync", s.handleSync)
				r.Get("/report", s.handleReport)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Shutdown stops accepting requests, drains in-flight ones and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).Warn("rate limit exceeded", log.FieldClientIP, s.clientIP.Extract(r))
	writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}
