// Package session persists completed analysis sessions and serves the
// teacher-facing queries built on top of them: per-student history and
// class-level rollups.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/soundmind-app/soundmind/internal/biomarker"
	"github.com/soundmind-app/soundmind/internal/scoring"
)

// Record is one completed analysis session.
type Record struct {
	// ID is the session identifier, assigned on insert.
	ID string `json:"id"`

	// UserID identifies the student.
	UserID string `json:"userId"`

	// Score is the final stress score in [0, 100].
	Score float64 `json:"score"`

	// Category is the triage bucket the score fell into.
	Category scoring.Category `json:"category"`

	// Multiplier is the sensitivity multiplier that was applied.
	Multiplier float64 `json:"multiplier"`

	// Biomarkers is the normalized biomarker list shown to the student.
	Biomarkers []biomarker.Biomarker `json:"biomarkers"`

	// CreatedAt is the completion time.
	CreatedAt time.Time `json:"createdAt"`
}

// Summary is a per-student rollup for the teacher dashboard.
type Summary struct {
	UserID       string    `json:"userId"`
	SessionCount int       `json:"sessionCount"`
	AvgScore     float64   `json:"avgScore"`
	HighRiskRuns int       `json:"highRiskRuns"`
	LastSession  time.Time `json:"lastSession"`
}

// Store persists session records.
//
// Implementations must be safe for concurrent use. Insert assigns Record.ID
// and Record.CreatedAt when they are zero.
type Store interface {
	// Insert writes a new session record.
	Insert(ctx context.Context, rec *Record) error

	// RecentByUser returns up to limit sessions for userID, newest first.
	RecentByUser(ctx context.Context, userID string, limit int) ([]Record, error)

	// Summaries returns one rollup per student seen within the window,
	// ordered by average score descending so the dashboard surfaces the
	// most stressed students first.
	Summaries(ctx context.Context, since time.Time) ([]Summary, error)
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}
