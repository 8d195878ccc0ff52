package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// subscriberBuffer bounds each subscriber's pending events. A watcher
	// that stops reading is dropped rather than allowed to back up the hub.
	subscriberBuffer = 16

	writeTimeout = 5 * time.Second
)

// Hub broadcasts alert events to WebSocket subscribers, typically the
// teacher dashboard. It implements [Notifier].
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}

	// OnSubscriberChange, if set, is called with +1 on every join and -1 on
	// every leave, while the hub's lock is held so deltas arrive in order.
	// Used to feed the metrics gauge. The callback must not call back into
	// the hub.
	OnSubscriberChange func(delta int)
}

// Compile-time interface check.
var _ Notifier = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan Event]struct{})}
}

// Notify implements [Notifier]. Subscribers whose buffers are full miss the
// event; the dashboard reconciles from session history on reconnect.
func (h *Hub) Notify(_ context.Context, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			slog.Warn("alert subscriber lagging, dropping event", "user_id", ev.UserID)
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams alert events as
// JSON text messages until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("alert websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("encoding alert event failed", "err", err)
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// SubscriberCount returns the number of connected watchers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[ch] = struct{}{}
	if h.OnSubscriberChange != nil {
		h.OnSubscriberChange(1)
	}
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, ch)
	if h.OnSubscriberChange != nil {
		h.OnSubscriberChange(-1)
	}
}
