package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/soundmind-app/soundmind/internal/observe"
	"github.com/soundmind-app/soundmind/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	// defaultSummaryWindow is how far back the dashboard rollup looks.
	defaultSummaryWindow = 7 * 24 * time.Hour
)

// handleStudentSessions returns a student's recent session history,
// newest first.
func (s *Server) handleStudentSessions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "student id is required")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	recs, err := s.sessions.RecentByUser(r.Context(), id, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("session history query failed", "user_id", id, "err", err)
		s.metrics.RecordProviderError(r.Context(), "postgres")
		writeError(w, http.StatusInternalServerError, "loading session history failed")
		return
	}
	if recs == nil {
		recs = []session.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recs})
}

// handleDashboardSummary returns per-student rollups for the teacher
// dashboard, most stressed students first.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	window := defaultSummaryWindow
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		window = time.Duration(n) * 24 * time.Hour
	}

	since := time.Now().Add(-window)
	sums, err := s.sessions.Summaries(r.Context(), since)
	if err != nil {
		observe.Logger(r.Context()).Error("dashboard summary query failed", "err", err)
		s.metrics.RecordProviderError(r.Context(), "postgres")
		writeError(w, http.StatusInternalServerError, "loading dashboard summary failed")
		return
	}
	if sums == nil {
		sums = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":    since,
		"students": sums,
	})
}
