package server

import (
	"time"

	"github.com/engaging-workplace/clarity/internal/transcript"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

// TranscriptLoggedEvent announces a record the primary sink accepted.
type TranscriptLoggedEvent struct {
	Event
	SessionID  string             `json:"session_id"`
	Speaker    transcript.Speaker `json:"speaker"`
	Transcript string             `json:"transcript"`
	SpokenAt   string             `json:"spoken_at"`
}

type SummaryReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
