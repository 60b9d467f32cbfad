// Package api exposes the chat assistant and lead administration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/conversation"
	"github.com/sells-group/lead-concierge/internal/resilience"
	"github.com/sells-group/lead-concierge/internal/session"
	"github.com/sells-group/lead-concierge/internal/store"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "LeniLani AI Chatbot"

const maxBodyBytes = 64 << 10

// Conversations is the conversation surface the HTTP layer drives.
type Conversations interface {
	HandleTurn(ctx context.Context, req conversation.ChatRequest) conversation.ChatResponse
	LeadData(sessionID string) (conversation.LeadData, error)
	EndSession(ctx context.Context, sessionID string) (session.EndResult, error)
	ActiveSessions() int
}

// Server holds HTTP handler dependencies.
type Server struct {
	conv        Conversations
	leads       store.LeadStore
	ledger      store.Ledger
	adminUser   string
	adminPass   string
	corsOrigins []string
	circuits    func() map[string]resilience.BreakerState
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables delivery history in admin responses.
func WithLedger(l store.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithAdmin mounts the admin routes behind HTTP Basic auth. Empty
// credentials leave them unmounted.
func WithAdmin(username, password string) Option {
	return func(s *Server) {
		s.adminUser = username
		s.adminPass = password
	}
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithCircuits reports channel circuit breaker states in admin stats.
func WithCircuits(fn func() map[string]resilience.BreakerState) Option {
	return func(s *Server) { s.circuits = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server.
func New(conv Conversations, leads store.LeadStore, opts ...Option) *Server {
	s := &Server{
		conv:        conv,
		leads:       leads,
		corsOrigins: []string{"*"},
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) adminEnabled() bool { return s.adminUser != "" && s.adminPass != "" }

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Route("/session/{id}", func(r chi.Router) {
		r.Get("/lead-data", s.handleLeadData)
		r.Post("/end", s.handleEndSession)
	})

	if s.adminEnabled() {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.BasicAuth("LeniLani Admin", map[string]string{s.adminUser: s.adminPass}))
			r.Get("/leads", s.handleListLeads)
			r.Get("/leads/export", s.handleExportLeads)
			r.Get("/leads/{id}", s.handleGetLead)
			r.Delete("/leads/{id}", s.handleDeleteLead)
			r.Get("/stats", s.handleStats)
		})
	} else {
		zap.L().Info("api: admin routes disabled, no credentials configured")
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"service":         ServiceName,
		"active_sessions": s.conv.ActiveSessions(),
		"timestamp":       s.now().UTC(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req conversation.ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if isBlank(req.Message) {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	writeJSON(w, http.StatusOK, s.conv.HandleTurn(r.Context(), req))
}

func (s *Server) handleLeadData(w http.ResponseWriter, r *http.Request) {
	data, err := s.conv.LeadData(chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.conv.EndSession(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"status":        "ended",
		"lead_captured": res.Captured,
		"lead_id":       res.LeadID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers without exposing it.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("api: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
