// Package api provides the HTTP surface of the Valet daemon: the inbound
// message webhook, a health probe, and read-only views of reminders and
// background jobs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/pipeline"
	"github.com/valet-hq/valet/internal/reminders"
	"github.com/valet-hq/valet/internal/scheduler"
)

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	pipe      *pipeline.Pipeline
	reminders *reminders.Store
	sched     *scheduler.Scheduler

	// allowedSenders gates the webhook; empty means reject everything,
	// an unauthenticated open webhook is not a useful degraded mode.
	allowedSenders map[string]bool
}

// Config for the server.
type Config struct {
	Host           string
	Port           int
	Pipeline       *pipeline.Pipeline
	Reminders      *reminders.Store
	Scheduler      *scheduler.Scheduler
	AllowedSenders []string
}

// New creates a new API server.
func New(cfg Config) *Server {
	allowed := make(map[string]bool, len(cfg.AllowedSenders))
	for _, s := range cfg.AllowedSenders {
		allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}

	s := &Server{
		pipe:           cfg.Pipeline,
		reminders:      cfg.Reminders,
		sched:          cfg.Scheduler,
		allowedSenders: allowed,
	}
	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/message", s.handleWebhookMessage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/reminders", s.handleListReminders)
		r.Get("/jobs", s.handleListJobs)
	})

	s.router = r
}

// Handler exposes the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server. Blocks until shutdown.
func (s *Server) Start() error {
	logging.Info("API server starting on http://%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// webhookPayload is what an SMS/email relay posts to the webhook.
type webhookPayload struct {
	From    string `json:"from"`
	Body    string `json:"body"`
	Channel string `json:"channel,omitempty"`
}

func (s *Server) handleWebhookMessage(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Body) == "" {
		s.respondError(w, http.StatusBadRequest, "empty message")
		return
	}
	if !s.allowedSenders[strings.ToLower(strings.TrimSpace(payload.From))] {
		logging.Warn("rejected webhook message from %q", payload.From)
		s.respondError(w, http.StatusForbidden, "sender not allowed")
		return
	}

	channel := core.Channel(payload.Channel)
	if channel == "" {
		channel = core.ChannelSMS
	}

	result, err := s.pipe.Handle(r.Context(), core.InboundMessage{
		Channel:   channel,
		Sender:    payload.From,
		Text:      payload.Body,
		Scope:     core.ScopeGeneral,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"response": result.Decision.Response,
		"actions":  result.Actions,
	})
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	pending, err := s.reminders.PendingReminders()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, pending)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		s.respondJSON(w, http.StatusOK, []scheduler.Stats{})
		return
	}
	s.respondJSON(w, http.StatusOK, s.sched.JobStats())
}
