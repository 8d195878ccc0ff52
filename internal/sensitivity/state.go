// Package sensitivity maintains the per-student adaptive sensitivity state
// that tunes how aggressively stress scoring reacts to deviation from a
// personal baseline.
//
// The state machine is deliberately conservative: a warm-up period holds the
// multiplier at 1.0 until enough history exists, sustained elevated stress is
// required before the multiplier rises, and a decay rule pulls it back toward
// 1.0 once readings normalize. The multiplier never leaves [1.0, 1.3].
//
// Persistence follows the application's dual-write scheme: a local file store
// is authoritative and a PostgreSQL mirror is written opportunistically, so a
// device keeps working offline and state follows the student across devices
// when the mirror is reachable.
package sensitivity

import (
	"math"
	"time"
)

// SchemaVersion tags persisted state for forward compatibility. Readers must
// tolerate records with a lower version by filling defaults for absent
// fields.
const SchemaVersion = 1

const (
	// MinSensitivity and MaxSensitivity bound the multiplier. Values outside
	// this range never escape the package.
	MinSensitivity = 1.0
	MaxSensitivity = 1.3

	// WindowSize is the number of most-recent stress scores retained for
	// pattern detection.
	WindowSize = 5

	// WarmupSessions is the number of completed sessions required before the
	// multiplier may move off 1.0.
	WarmupSessions = 5
)

// State is the persisted adaptive-sensitivity record for one student.
type State struct {
	// Version is the schema tag, always [SchemaVersion] on write.
	Version int `json:"version"`

	// BaseSensitivity is the multiplier applied to stress scoring,
	// within [MinSensitivity, MaxSensitivity].
	BaseSensitivity float64 `json:"baseSensitivity"`

	// RecentStressScores holds up to [WindowSize] past scores, oldest first.
	RecentStressScores []float64 `json:"recentStressScores"`

	// SessionsSinceCalibration counts completed analysis sessions. It only
	// resets when the student recalibrates their baseline.
	SessionsSinceCalibration int `json:"sessionsSinceCalibration"`

	// LastUpdated is the time of the last write.
	LastUpdated time.Time `json:"lastUpdated"`
}

// DefaultState returns the fresh record created lazily on first read and
// written by Reset.
func DefaultState() State {
	return State{
		Version:            SchemaVersion,
		BaseSensitivity:    MinSensitivity,
		RecentStressScores: []float64{},
	}
}

// normalize repairs a partially-shaped or out-of-contract record in place.
// Load paths call this so that a corrupt persisted record degrades to usable
// defaults instead of failing the session.
func (s *State) normalize() {
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	s.BaseSensitivity = clamp(s.BaseSensitivity)
	if s.RecentStressScores == nil {
		s.RecentStressScores = []float64{}
	}
	if len(s.RecentStressScores) > WindowSize {
		s.RecentStressScores = s.RecentStressScores[len(s.RecentStressScores)-WindowSize:]
	}
	if s.SessionsSinceCalibration < 0 {
		s.SessionsSinceCalibration = 0
	}
}

// clamp forces v into [MinSensitivity, MaxSensitivity]. Non-finite input
// collapses to MinSensitivity.
func clamp(v float64) float64 {
	if math.IsNaN(v) || v < MinSensitivity {
		return MinSensitivity
	}
	if v > MaxSensitivity {
		return MaxSensitivity
	}
	return v
}
