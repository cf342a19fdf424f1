// Package stream fans out graduation updates to live push subscribers
// over a server-sent event stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/observability"
)

// Push-stream event payloads. Each event is one JSON message with a
// type discriminator.
type snapshotEvent struct {
	Type      string             `json:"type"`
	Graduates []*domain.Graduate `json:"graduates"`
}

type graduateEvent struct {
	Type     string           `json:"type"`
	Graduate *domain.Graduate `json:"graduate"`
}

type pingEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type clearEvent struct {
	Type string `json:"type"`
}

// SnapshotFunc supplies the current store contents for new subscribers,
// newest first.
type SnapshotFunc func() []*domain.Graduate

// Hub manages the set of live subscribers. Send failures (full buffer)
// remove the subscriber; no explicit unsubscribe is required, though
// one is supported.
type Hub struct {
	snapshot      SnapshotFunc
	snapshotLimit int
	pingInterval  time.Duration
	sendBuffer    int
	clock         clock.Clock
	logger        *log.Logger

	mu     sync.Mutex
	subs   map[uint64]chan []byte
	nextID uint64
}

// HubOptions configures a Hub.
type HubOptions struct {
	// SnapshotLimit caps the initial snapshot size. Default: 20.
	SnapshotLimit int
	// PingInterval is the liveness ping period. Default: 30s.
	PingInterval time.Duration
	// SendBuffer is the per-subscriber channel capacity. Default: 16.
	SendBuffer int
	Clock      clock.Clock
	Logger     *log.Logger
}

// NewHub creates a hub with no subscribers.
func NewHub(snapshot SnapshotFunc, opts HubOptions) *Hub {
	snapshotLimit := opts.SnapshotLimit
	if snapshotLimit == 0 {
		snapshotLimit = 20
	}
	pingInterval := opts.PingInterval
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	sendBuffer := opts.SendBuffer
	if sendBuffer == 0 {
		sendBuffer = 16
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		snapshot:      snapshot,
		snapshotLimit: snapshotLimit,
		pingInterval:  pingInterval,
		sendBuffer:    sendBuffer,
		clock:         clk,
		logger:        logger,
		subs:          make(map[uint64]chan []byte),
	}
}

// Subscribe registers a new subscriber and queues the initial snapshot
// of current store contents as the first event.
func (h *Hub) Subscribe() (uint64, <-chan []byte) {
	var graduates []*domain.Graduate
	if h.snapshot != nil {
		graduates = h.snapshot()
		if len(graduates) > h.snapshotLimit {
			graduates = graduates[:h.snapshotLimit]
		}
	}
	if graduates == nil {
		graduates = []*domain.Graduate{}
	}
	payload := marshalEvent(snapshotEvent{Type: "graduates", Graduates: graduates})

	ch := make(chan []byte, h.sendBuffer)
	ch <- payload

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	count := len(h.subs)
	h.mu.Unlock()

	observability.UpdateSubscriberCount(count)
	return id, ch
}

// Unsubscribe removes a subscriber.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	count := len(h.subs)
	h.mu.Unlock()

	observability.UpdateSubscriberCount(count)
}

// BroadcastGraduate pushes one upserted record to every subscriber.
func (h *Hub) BroadcastGraduate(g *domain.Graduate) {
	h.broadcast(marshalEvent(graduateEvent{Type: "newGraduate", Graduate: g}))
}

// BroadcastClear announces a store reset.
func (h *Hub) BroadcastClear() {
	h.broadcast(marshalEvent(clearEvent{Type: "clear"}))
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run sends periodic liveness pings so idle subscribers do not get
// dropped by transport timeouts. Blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	ticker := h.clock.Ticker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.broadcast(marshalEvent(pingEvent{
				Type:      "ping",
				Timestamp: h.clock.Now().UnixMilli(),
			}))
		}
	}
}

// broadcast delivers a payload to every subscriber. A subscriber whose
// buffer is full is removed; fan-out is best effort.
func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	var stale []uint64
	for id, ch := range h.subs {
		select {
		case ch <- payload:
		default:
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(h.subs, id)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if len(stale) > 0 {
		h.logger.Printf("Removed %d stalled subscriber(s)", len(stale))
	}
	observability.UpdateSubscriberCount(count)
	observability.RecordBroadcast()
}

// ServeHTTP upgrades the request into a text event stream and relays
// hub events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := h.Subscribe()
	defer h.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-ch:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func marshalEvent(event interface{}) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		// Event types marshal by construction; this is unreachable.
		return []byte(`{"type":"error"}`)
	}
	return payload
}
