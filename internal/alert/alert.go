// Package alert raises teacher notifications when a student's stress score
// crosses the high-risk line, with a per-student cooldown so a run of high
// sessions does not flood the dashboard.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soundmind-app/soundmind/internal/scoring"
)

// DefaultCooldown is the minimum gap between alerts for the same student at
// the high-risk threshold. Higher scores shorten the gap, down to
// minCooldownFactor of the configured value at a score of 100.
const DefaultCooldown = 10 * time.Minute

// minCooldownFactor is the fraction of the cooldown that remains at the
// maximum score. A score of 100 re-alerts four times as often as a score
// sitting right on the threshold.
const minCooldownFactor = 0.25

// Event is one high-risk notification.
type Event struct {
	UserID    string           `json:"userId"`
	SessionID string           `json:"sessionId"`
	Score     float64          `json:"score"`
	Category  scoring.Category `json:"category"`
	At        time.Time        `json:"at"`
}

// Notifier delivers events to whoever is watching. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCooldown overrides the per-student alert cooldown.
func WithCooldown(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.cooldown = d
		}
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) {
		if now != nil {
			dp.now = now
		}
	}
}

// Dispatcher decides when a scoring result warrants an alert and fans it out
// to the configured notifiers. Safe for concurrent use.
type Dispatcher struct {
	notifiers []Notifier
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewDispatcher creates a Dispatcher fanning out to notifiers.
func NewDispatcher(notifiers []Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		cooldown:  DefaultCooldown,
		now:       time.Now,
		lastSent:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetCooldown changes the per-student cooldown at runtime, used by config
// hot reload. Non-positive values are ignored.
func (d *Dispatcher) SetCooldown(cd time.Duration) {
	if cd <= 0 {
		return
	}
	d.mu.Lock()
	d.cooldown = cd
	d.mu.Unlock()
}

// Observe inspects a completed session and raises an alert when the score is
// in the high-risk band and the student is past their cooldown. It reports
// whether an alert was sent.
func (d *Dispatcher) Observe(ctx context.Context, userID, sessionID string, res scoring.Result) bool {
	if !res.HighRisk {
		if res.Category == scoring.CategoryHigh {
			slog.Info("high stress session below alert threshold",
				"user_id", userID, "session_id", sessionID, "score", res.Score)
		}
		return false
	}

	now := d.now()
	d.mu.Lock()
	if last, ok := d.lastSent[userID]; ok && now.Sub(last) < effectiveCooldown(d.cooldown, res.Score) {
		d.mu.Unlock()
		return false
	}
	d.lastSent[userID] = now
	d.mu.Unlock()

	ev := Event{
		UserID:    userID,
		SessionID: sessionID,
		Score:     res.Score,
		Category:  res.Category,
		At:        now,
	}
	slog.Info("high stress alert", "user_id", userID, "session_id", sessionID, "score", res.Score)
	for _, n := range d.notifiers {
		n.Notify(ctx, ev)
	}
	return true
}

// effectiveCooldown scales base down linearly as score climbs above the
// high-risk threshold, bottoming out at minCooldownFactor for a score of 100.
func effectiveCooldown(base time.Duration, score float64) time.Duration {
	span := 100 - scoring.HighRiskThreshold
	frac := (score - scoring.HighRiskThreshold) / span
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	factor := 1 - (1-minCooldownFactor)*frac
	return time.Duration(float64(base) * factor)
}
