package main

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hubenschmidt/interview-assistant/internal/state"
)

// statusHub fans status snapshots out to SSE subscribers.
type statusHub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
	last []byte
}

func newStatusHub() *statusHub {
	return &statusHub{subs: map[chan []byte]struct{}{}}
}

func (h *statusHub) subscribe() chan []byte {
	ch := make(chan []byte, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *statusHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// publish encodes snap and broadcasts it when it differs from the last one.
// The comparison and the fan-out share one critical section, so the value
// each subscriber holds last always matches h.last.
func (h *statusHub) publish(snap state.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("encode status", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if string(data) == string(h.last) {
		return
	}
	h.last = data
	h.broadcastLocked(data)
}

// broadcastLocked sends data to all SSE subscribers without blocking. A full
// capacity-1 channel has its stale value replaced, so a slow reader always
// wakes up to the newest snapshot. h.mu must be held.
func (h *statusHub) broadcastLocked(data []byte) {
	slog.Debug("status broadcast", "data", string(data))
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
}
