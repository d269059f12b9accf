package stream

import (
	"sync"
	"time"

	"project-chimera/internal/domain"
)

// Event is one run state transition as pushed to subscribed clients.
type Event struct {
	RunID     int64           `json:"run_id"`
	Ticker    string          `json:"ticker"`
	State     domain.RunState `json:"state"`
	ErrorKind string          `json:"error_kind,omitempty"`
	At        time.Time       `json:"at"`
}

const subscriberBuffer = 16

// Hub fans run events out to per-user subscribers. A subscriber that stops
// draining loses events rather than blocking the pipeline.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[int64]map[chan Event]struct{})}
}

// Publish delivers the transition to every subscriber of the run's owner.
func (h *Hub) Publish(userID, runID int64, ticker string, state domain.RunState, errorKind string) {
	event := Event{
		RunID:     runID,
		Ticker:    ticker,
		State:     state,
		ErrorKind: errorKind,
		At:        time.Now().UTC(),
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[userID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener for the user's runs. The returned cancel
// func must be called to release the channel.
func (h *Hub) Subscribe(userID int64) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[chan Event]struct{})
	}
	h.subscribers[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subscribers[userID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.subscribers, userID)
			}
		}
	}
	return ch, cancel
}
