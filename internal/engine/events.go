package engine

import (
	"sync"
	"time"

	"refinery/internal/model"

	"github.com/rs/zerolog/log"
)

// Event is one progress record in a batch's streamed log. Events are
// emitted strictly in item-completion order; Current is monotonically
// increasing within one run. The final event of a run always carries a
// Status so clients can deterministically stop listening.
type Event struct {
	Message         string             `json:"message"`
	Current         int                `json:"current,omitempty"`
	Total           int                `json:"total,omitempty"`
	ClinicTitle     string             `json:"clinicTitle,omitempty"`
	WordCountBefore int                `json:"wordCountBefore,omitempty"`
	WordCountAfter  int                `json:"wordCountAfter,omitempty"`
	Error           string             `json:"error,omitempty"`
	Status          model.BatchStatus  `json:"status,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Terminal reports whether this event ends the stream for the current run
func (e Event) Terminal() bool {
	return e.Status != ""
}

const subscriberBuffer = 64

// Hub fans progress events out to any number of stream subscribers, keyed
// by batch id. Runners publish; HTTP streams subscribe. A subscriber may
// attach before the runner starts (the feed is created on first use), and
// detaching never affects the runner.
type Hub struct {
	mu    sync.Mutex
	feeds map[string]map[int]chan Event
	next  int
}

func NewHub() *Hub {
	return &Hub{feeds: make(map[string]map[int]chan Event)}
}

// Subscribe attaches to a batch's event feed. The returned cancel func
// detaches and closes the channel; it is safe to call after the feed has
// already been closed by a terminal event.
func (h *Hub) Subscribe(batchID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.feeds[batchID]
	if !ok {
		subs = make(map[int]chan Event)
		h.feeds[batchID] = subs
	}

	id := h.next
	h.next++
	ch := make(chan Event, subscriberBuffer)
	subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.feeds[batchID]; ok {
			if c, ok := subs[id]; ok {
				delete(subs, id)
				close(c)
			}
			if len(subs) == 0 {
				delete(h.feeds, batchID)
			}
		}
	}

	return ch, cancel
}

// Publish delivers an event to all current subscribers of a batch. Sends
// never block the engine loop: a subscriber that has fallen behind by more
// than the buffer size loses events. A terminal event closes the feed.
func (h *Hub) Publish(batchID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.feeds[batchID]
	for id, ch := range subs {
		select {
		case ch <- ev:
		default:
			log.Warn().
				Str("batchId", batchID).
				Int("subscriber", id).
				Msg("Event subscriber too slow, dropping event")
		}
	}

	if ev.Terminal() && subs != nil {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.feeds, batchID)
	}
}
