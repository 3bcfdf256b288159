package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

// Hub fans server events out to websocket subscribers. Slow subscribers
// miss messages rather than block the sender.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	log     zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		log:     observability.Component("hub"),
	}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	observability.HubClientConnected()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
	observability.HubClientDisconnected()
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastTranscriptLogged(rec transcript.Record) {
	h.broadcastEvent(TranscriptLoggedEvent{
		Event:      newEvent("transcript_logged", time.Now().UTC()),
		SessionID:  rec.SessionID,
		Speaker:    rec.Speaker,
		Transcript: rec.Transcript,
		SpokenAt:   rec.Timestamp,
	})
}

func (h *Hub) BroadcastSummaryReady(sessionID, summary, status string) {
	h.broadcastEvent(SummaryReadyEvent{
		Event:     newEvent("summary_ready", time.Now().UTC()),
		SessionID: sessionID,
		Summary:   summary,
		Status:    status,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("event marshal error")
		return
	}
	h.Broadcast(payload)
}
