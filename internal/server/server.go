// Package server exposes the SoundMind HTTP API: stress analysis,
// calibration, session history, the teacher dashboard, and alert streaming.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundmind-app/soundmind/internal/alert"
	"github.com/soundmind-app/soundmind/internal/baseline"
	"github.com/soundmind-app/soundmind/internal/health"
	"github.com/soundmind-app/soundmind/internal/observe"
	"github.com/soundmind-app/soundmind/internal/sensitivity"
	"github.com/soundmind-app/soundmind/internal/session"
	"github.com/soundmind-app/soundmind/internal/suggest"
	"github.com/soundmind-app/soundmind/pkg/extract"
)

// anonymousUser is the principal assigned to requests that carry no student
// identity. Kept explicit so anonymous sessions are visible in history and
// logs instead of silently sharing a default record.
const anonymousUser = "anonymous"

// Server holds the wired subsystems behind the HTTP API.
type Server struct {
	engine    *sensitivity.Engine
	suggester *suggest.Generator
	sessions  session.Store
	baselines baseline.Store

	dispatcher *alert.Dispatcher
	hub        *alert.Hub

	// extractor is nil when audio uploads are disabled; clients must then
	// submit precomputed feature bags.
	extractor *extract.Client

	metrics *observe.Metrics
	health  *health.Handler

	tokenSecret []byte
	tokenTTL    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithExtractor enables audio uploads through the given extraction client.
func WithExtractor(c *extract.Client) Option {
	return func(s *Server) { s.extractor = c }
}

// WithAlerting wires the alert dispatcher and WebSocket hub.
func WithAlerting(d *alert.Dispatcher, h *alert.Hub) Option {
	return func(s *Server) {
		s.dispatcher = d
		s.hub = h
	}
}

// WithChatTokens enables the chat token endpoint, signing tokens with secret.
// ttl of 0 uses a 15 minute default.
func WithChatTokens(secret string, ttl time.Duration) Option {
	return func(s *Server) {
		s.tokenSecret = []byte(secret)
		if ttl <= 0 {
			ttl = 15 * time.Minute
		}
		s.tokenTTL = ttl
	}
}

// WithHealthCheckers registers readiness checkers on /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// New wires a Server from its subsystems.
func New(engine *sensitivity.Engine, suggester *suggest.Generator, sessions session.Store, baselines baseline.Store, metrics *observe.Metrics, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		suggester: suggester,
		sessions:  sessions,
		baselines: baselines,
		metrics:   metrics,
		health:    health.New(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the full API handler with observability middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /v1/calibrate", s.handleCalibrate)
	mux.HandleFunc("DELETE /v1/calibrate", s.handleClearCalibration)
	mux.HandleFunc("GET /v1/students/{id}/sessions", s.handleStudentSessions)
	mux.HandleFunc("GET /v1/dashboard/summary", s.handleDashboardSummary)
	mux.HandleFunc("POST /v1/chat/token", s.handleChatToken)
	if s.hub != nil {
		mux.Handle("GET /v1/alerts/ws", s.hub)
	}

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// userID resolves the student identity for a request. Requests without an
// identity are served under the explicit anonymous principal with a warning,
// so shared-device deployments still work but the gap is visible.
func userID(r *http.Request, bodyID string) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	if bodyID != "" {
		return bodyID
	}
	observe.Logger(r.Context()).Warn("request without student identity, using anonymous principal",
		"path", r.URL.Path)
	return anonymousUser
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
