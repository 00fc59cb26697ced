// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomsim

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/roomgate/internal/log"
	"github.com/ManuGH/roomgate/internal/metrics"
)

// Server wires the stores and the HTTP surface together.
type Server struct {
	rooms    *RoomStore
	sessions *SessionStore
	tickets  *TicketStore

	externalURL string
	logger      zerolog.Logger

	rateLimitEnabled bool
	rateLimit        int
	rateWindow       time.Duration

	tracing bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRateLimit configures admission-endpoint rate limiting.
func WithRateLimit(enabled bool, limit int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.rateLimitEnabled = enabled
		s.rateLimit = limit
		s.rateWindow = window
	}
}

// WithTracing wraps the handler with OpenTelemetry HTTP instrumentation.
func WithTracing() ServerOption {
	return func(s *Server) { s.tracing = true }
}

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer builds a Server over the given stores. externalURL is the
// public base under which issued meeting URLs resolve.
func NewServer(rooms *RoomStore, sessions *SessionStore, tickets *TicketStore, externalURL string, opts ...ServerOption) *Server {
	s := &Server{
		rooms:       rooms,
		sessions:    sessions,
		tickets:     tickets,
		externalURL: externalURL,
		logger:      log.WithComponent("roomsim"),
		rateLimit:   30,
		rateWindow:  time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the HTTP surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(Observe)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/meet/{ticketID}", s.handleRedeem)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/session", s.handleLogin)
		r.Delete("/auth/session", s.handleLogout)

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", s.handleRoomDetail)
			r.Get("/meeting/requirements", s.handleRequirements)

			r.Group(func(r chi.Router) {
				if s.rateLimitEnabled {
					r.Use(RateLimit(s.rateLimit, s.rateWindow))
				}
				r.Post("/meeting/join", s.handleJoin)
				r.Post("/meeting/start", s.handleStart)
			})
		})
	})

	if s.tracing {
		return otelhttp.NewHandler(r, "roomsim")
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorEnvelope is the wire shape of every failure response.
type errorEnvelope struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string, fieldErrors map[string][]string) {
	writeJSON(w, status, errorEnvelope{Message: message, Errors: fieldErrors})
}
