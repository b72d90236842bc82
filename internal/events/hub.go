// Package events pushes batch status snapshots to websocket subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// EventBatchStatus is the only event type sent to clients.
const EventBatchStatus = "batch_status"

// Event is one message pushed to a client.
type Event struct {
	Type    string            `json:"type"`
	BatchID string            `json:"batch_id"`
	Payload *model.BatchState `json:"payload"`
}

const sendBuffer = 16

type subscriber struct {
	batchID string
	send    chan []byte
}

// Hub fans committed batch states out to the subscribers of that batch.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
	log  zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		log:  logger.WithComponent("events"),
	}
}

// Subscribe registers interest in batchID. The returned cancel func must be
// called once; it closes the channel.
func (h *Hub) Subscribe(batchID string) (<-chan []byte, func()) {
	s := &subscriber{batchID: batchID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.subs[batchID] == nil {
		h.subs[batchID] = make(map[*subscriber]struct{})
	}
	h.subs[batchID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.send, func() {
		once.Do(func() { h.remove(s) })
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[s.batchID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.batchID)
	}
	close(s.send)
}

// Subscribers returns the number of clients watching batchID.
func (h *Hub) Subscribers(batchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[batchID])
}

// Publish implements batch.Notifier. Slow clients miss updates rather than
// block the committer; the next snapshot supersedes the dropped one.
func (h *Hub) Publish(state *model.BatchState) {
	data, err := Encode(state)
	if err != nil {
		h.log.Error().Err(err).Str("batch_id", state.Batch.ID).Msg("encode batch event")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[state.Batch.ID] {
		select {
		case s.send <- data:
		default:
			h.log.Debug().Str("batch_id", state.Batch.ID).Msg("subscriber too slow, event dropped")
		}
	}
}

// Encode renders state as a batch_status event.
func Encode(state *model.BatchState) ([]byte, error) {
	return json.Marshal(Event{Type: EventBatchStatus, BatchID: state.Batch.ID, Payload: state})
}
