// Package api exposes the engagement tracker over HTTP: webhook ingestion
// from the sending platform, the first-party tracking pixel, and the read
// endpoints used by export and reporting tooling.
package api

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ignite/lead-engagement/internal/domain"
	"github.com/ignite/lead-engagement/internal/engagement"
)

// EventProcessor applies inbound events to lead state.
type EventProcessor interface {
	ProcessWebhookEvent(ctx context.Context, evt *domain.EngagementEvent) (*engagement.Result, error)
	ProcessPixelOpen(ctx context.Context, email, messageRef, userAgent, clientIP string) (*engagement.Result, error)
}

// LeadReader serves the persisted lead collection.
type LeadReader interface {
	Get(ctx context.Context, email string) (*domain.Lead, error)
	List(ctx context.Context) ([]domain.Lead, error)
}

// AuditReader serves the recorded open audit events.
type AuditReader interface {
	List(ctx context.Context, email string) ([]domain.OpenAuditEvent, error)
}

// Server is the HTTP front for the engagement tracker.
type Server struct {
	processor EventProcessor
	leads     LeadReader
	audits    AuditReader
	db        *sql.DB
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires handlers onto the router. db may be nil in tests; the
// health endpoint then skips the connectivity probe.
func NewServer(processor EventProcessor, leads LeadReader, audits AuditReader, db *sql.DB) *Server {
	s := &Server{
		processor: processor,
		leads:     leads,
		audits:    audits,
		db:        db,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	// Ingestion surface. Callers are the sending platform and email
	// clients fetching the pixel, so no CORS here.
	r.Post("/webhook", s.handleWebhook)
	r.Get("/o.gif", s.handlePixel)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	// Read surface for dashboards and export tooling.
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/leads", s.handleListLeads)
		r.Get("/leads.csv", s.handleLeadsCSV)
		r.Get("/leads/{email}", s.handleGetLead)
		r.Get("/opens", s.handleListOpens)
	})

	return r
}

// ListenAndServe starts the server on addr and blocks until shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// realIP resolves the caller address behind the usual proxy headers.
func realIP(r *http.Request) string {
	if v := r.Header.Get("X-Real-Ip"); v != "" {
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if idx := strings.Index(v, ","); idx >= 0 {
			v = v[:idx]
		}
		return strings.TrimSpace(v)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
