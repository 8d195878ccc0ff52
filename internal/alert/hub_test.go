package alert

import (
	"sync"
	"testing"
)

func TestHubSubscriberChangeDeltas(t *testing.T) {
	t.Parallel()
	h := NewHub()

	var deltas []int
	h.OnSubscriberChange = func(delta int) { deltas = append(deltas, delta) }

	ch := h.subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", h.SubscriberCount())
	}
	h.unsubscribe(ch)

	want := []int{1, -1}
	if len(deltas) != len(want) || deltas[0] != want[0] || deltas[1] != want[1] {
		t.Errorf("deltas = %v, want %v", deltas, want)
	}
}

func TestHubConcurrentJoinLeaveKeepsGaugeConsistent(t *testing.T) {
	t.Parallel()
	h := NewHub()

	// The callback runs under the hub lock, so plain int arithmetic here is
	// serialized and the running sum can never drift from the true count.
	var running int
	h.OnSubscriberChange = func(delta int) {
		running += delta
		if running < 0 {
			t.Errorf("running subscriber sum went negative: %d", running)
		}
	}

	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := h.subscribe()
			h.unsubscribe(ch)
		}()
	}
	wg.Wait()

	if running != 0 {
		t.Errorf("running subscriber sum = %d after all leaves, want 0", running)
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", h.SubscriberCount())
	}
}
