package alert_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soundmind-app/soundmind/internal/alert"
	"github.com/soundmind-app/soundmind/internal/scoring"
)

// recorder captures delivered events.
type recorder struct {
	mu     sync.Mutex
	events []alert.Event
}

func (r *recorder) Notify(_ context.Context, ev alert.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func highRisk(score float64) scoring.Result {
	return scoring.Result{Score: score, Category: scoring.CategoryHigh, HighRisk: true}
}

func TestDispatcherBelowThresholdNoAlert(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := alert.NewDispatcher([]alert.Notifier{rec})

	res := scoring.Result{Score: 70, Category: scoring.CategoryHigh, HighRisk: false}
	if d.Observe(context.Background(), "amy", "s1", res) {
		t.Error("Observe() = true for non high-risk result")
	}
	if rec.count() != 0 {
		t.Errorf("delivered %d events, want 0", rec.count())
	}
}

func TestDispatcherHighRiskAlerts(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	d := alert.NewDispatcher([]alert.Notifier{rec})

	if !d.Observe(context.Background(), "amy", "s1", highRisk(82)) {
		t.Fatal("Observe() = false for high-risk result")
	}
	if rec.count() != 1 {
		t.Fatalf("delivered %d events, want 1", rec.count())
	}
	rec.mu.Lock()
	ev := rec.events[0]
	rec.mu.Unlock()
	if ev.UserID != "amy" || ev.SessionID != "s1" || ev.Score != 82 {
		t.Errorf("event = %+v, want amy/s1/82", ev)
	}
}

func TestDispatcherCooldownSuppressesRepeats(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rec := &recorder{}
	d := alert.NewDispatcher([]alert.Notifier{rec},
		alert.WithCooldown(10*time.Minute), alert.WithClock(clock))

	if !d.Observe(context.Background(), "amy", "s1", highRisk(80)) {
		t.Fatal("first Observe() = false")
	}
	now = now.Add(5 * time.Minute)
	if d.Observe(context.Background(), "amy", "s2", highRisk(90)) {
		t.Error("Observe() inside cooldown = true, want suppressed")
	}

	// A different student is not affected by amy's cooldown.
	if !d.Observe(context.Background(), "ben", "s3", highRisk(80)) {
		t.Error("Observe() for unrelated student = false")
	}

	now = now.Add(6 * time.Minute)
	if !d.Observe(context.Background(), "amy", "s4", highRisk(85)) {
		t.Error("Observe() after cooldown = false")
	}
	if rec.count() != 3 {
		t.Errorf("delivered %d events, want 3", rec.count())
	}
}

func TestDispatcherHigherScoresRealertSooner(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	rec := &recorder{}
	d := alert.NewDispatcher([]alert.Notifier{rec},
		alert.WithCooldown(10*time.Minute), alert.WithClock(clock))

	d.Observe(context.Background(), "amy", "s1", highRisk(75))
	now = now.Add(3 * time.Minute)

	// At the threshold the full 10 minute cooldown applies.
	if d.Observe(context.Background(), "amy", "s2", highRisk(75)) {
		t.Error("Observe() at threshold after 3m = true, want suppressed")
	}
	// A maximal score shortens the window to a quarter of the cooldown.
	if !d.Observe(context.Background(), "amy", "s3", highRisk(100)) {
		t.Error("Observe() at score 100 after 3m = false, want alert")
	}
	if rec.count() != 2 {
		t.Errorf("delivered %d events, want 2", rec.count())
	}
}

func TestHubFanout(t *testing.T) {
	t.Parallel()
	hub := alert.NewHub()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", hub.SubscriberCount())
	}

	// Notify with no subscribers must not block or panic.
	hub.Notify(context.Background(), alert.Event{UserID: "amy", Score: 80})
}
