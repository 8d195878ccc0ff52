// Package baseline stores each student's calibration recording: the raw
// feature bag captured during a calm reading, used later as the reference
// point for deviation scoring.
package baseline

import (
	"context"
	"time"

	"github.com/soundmind-app/soundmind/internal/biomarker"
)

// Baseline is a stored calibration profile.
type Baseline struct {
	// Features is the raw feature bag captured at calibration time.
	Features biomarker.FeatureBag `json:"features"`

	// CapturedAt is when the calibration recording was taken.
	CapturedAt time.Time `json:"capturedAt"`
}

// Store persists calibration baselines.
//
// Load returns (nil, nil) when no baseline exists for the user; scoring then
// falls back to threshold-only contributions.
type Store interface {
	Load(ctx context.Context, userID string) (*Baseline, error)
	Save(ctx context.Context, userID string, b *Baseline) error
	Clear(ctx context.Context, userID string) error
}
