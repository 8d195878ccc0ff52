package sensitivity

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Pattern-detection constants. The window aggregates below are compared
// against these to decide whether sustained elevated stress justifies raising
// the multiplier, or whether recent calm justifies decaying it.
const (
	highStressScore     = 20.0
	veryHighStressScore = 30.0

	moderateAvgThreshold = 25.0
	strongAvgThreshold   = 35.0

	patternCountRequired = 3

	sensitivityStep = 0.15
	decayFactor     = 0.95
)

// Engine owns the sensitivity update rule. It is the only mutator of
// persisted [State].
//
// Update and Reset for the same student are serialized through a per-student
// mutex, so two concurrent sessions (e.g. two browser tabs) cannot interleave
// the load-modify-save cycle and lose an update. Calls for distinct students
// proceed in parallel.
type Engine struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option is a functional option for [NewEngine].
type Option func(*Engine)

// WithClock overrides the engine's time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine persisting through store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Multiplier returns the multiplier to apply to the current scoring call.
// It reads persisted state only — the multiplier for a session must be the
// one computed from prior sessions, never updated mid-call.
func (e *Engine) Multiplier(ctx context.Context, userID string) float64 {
	st, err := e.store.Load(ctx, userID)
	if err != nil {
		slog.Warn("sensitivity load failed, using neutral multiplier", "user_id", userID, "err", err)
	}
	return clamp(st.BaseSensitivity)
}

// Update records a newly observed stress score for userID and returns the
// multiplier to apply to subsequent sessions.
//
// The update rule, in order:
//
//  1. Append the score to the rolling window, dropping the oldest entry
//     beyond [WindowSize]. A non-finite score is stored as 0 — it still
//     occupies a window slot so warm-up counting stays honest.
//  2. Increment the session counter.
//  3. During warm-up (counter ≤ [WarmupSessions]) the multiplier is pinned
//     at 1.0 regardless of scores.
//  4. Otherwise a pattern strength of 0, 1, or 2 is derived from the window:
//     elevated average plus enough high entries reads as a moderate pattern,
//     and a higher average plus enough very-high entries overrides it as a
//     strong pattern.
//  5. The decay rule is evaluated last and takes precedence: when the window
//     average and high count are both low, the previous multiplier decays
//     multiplicatively toward 1.0 — even if step 4 just computed a bump.
//     This ordering is intentional and load-bearing; see the package tests.
//  6. The result is clamped to [MinSensitivity, MaxSensitivity], persisted,
//     and returned.
func (e *Engine) Update(ctx context.Context, userID string, score float64) float64 {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	st, err := e.store.Load(ctx, userID)
	if err != nil {
		slog.Warn("sensitivity load failed before update", "user_id", userID, "err", err)
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}

	st.RecentStressScores = append(st.RecentStressScores, score)
	if len(st.RecentStressScores) > WindowSize {
		st.RecentStressScores = st.RecentStressScores[len(st.RecentStressScores)-WindowSize:]
	}
	st.SessionsSinceCalibration++

	st.BaseSensitivity = nextSensitivity(st.BaseSensitivity, st.RecentStressScores, st.SessionsSinceCalibration)
	st.Version = SchemaVersion
	st.LastUpdated = e.now().UTC()

	if err := e.store.Save(ctx, userID, st); err != nil {
		slog.Error("sensitivity save failed", "user_id", userID, "err", err)
	}

	// Defensive re-clamp at the return boundary: an out-of-contract value
	// must never escape even if the rule above regresses.
	return clamp(st.BaseSensitivity)
}

// Reset restores userID to the default state. It shares the per-student lock
// with Update so a recalibration cannot interleave with a session update.
func (e *Engine) Reset(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return e.store.Reset(ctx, userID)
}

// nextSensitivity applies steps 3–6 of the update rule to the post-append
// window. prev is the previously persisted multiplier.
func nextSensitivity(prev float64, window []float64, sessions int) float64 {
	if sessions <= WarmupSessions {
		return MinSensitivity
	}

	var sum float64
	var highCount, veryHighCount int
	for _, s := range window {
		sum += s
		if s > highStressScore {
			highCount++
		}
		if s > veryHighStressScore {
			veryHighCount++
		}
	}
	avg := 0.0
	if len(window) > 0 {
		avg = sum / float64(len(window))
	}

	patternStrength := 0.0
	if avg > moderateAvgThreshold && highCount >= patternCountRequired {
		patternStrength = 1.0
	}
	if avg > strongAvgThreshold && veryHighCount >= patternCountRequired {
		patternStrength = 2.0
	}

	next := MinSensitivity + patternStrength*sensitivityStep

	// Decay wins over a freshly computed bump when recent stress is low.
	if avg < highStressScore && highCount < 2 {
		next = math.Max(MinSensitivity, prev*decayFactor)
	}

	return clamp(next)
}

// userLock returns the mutex for userID, creating it on first use. Locks are
// never removed: the per-student footprint is one mutex, and a stale entry is
// cheaper than racing on deletion.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}
