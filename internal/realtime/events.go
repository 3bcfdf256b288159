// Package realtime holds the subset of the realtime speech API's data-channel
// protocol that the interview client speaks.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client events.
const (
	EventSessionUpdate  = "session.update"
	EventResponseCreate = "response.create"
)

// Server events the client reacts to.
const (
	EventTranscriptDelta             = "response.audio_transcript.delta"
	EventTranscriptDone              = "response.audio_transcript.done"
	EventInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventAudioDone                   = "response.audio.done"
	EventResponseDone                = "response.done"
	EventError                       = "error"
)

// DataChannelLabel is the label the vendor expects for the event channel.
const DataChannelLabel = "oai-events"

// Event is the inbound envelope. Fields not used by the client are dropped.
type Event struct {
	Type       string    `json:"type"`
	EventID    string    `json:"event_id,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	Delta      string    `json:"delta,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Error      *APIError `json:"error,omitempty"`
}

// APIError is the payload of an "error" event.
type APIError struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

var errNoType = errors.New("event has no type")

// ParseEvent decodes one data-channel message.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode realtime event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errNoType
	}
	return ev, nil
}

// SessionConfig is the session section of a session.update.
type SessionConfig struct {
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

type responseCreate struct {
	Type string `json:"type"`
}

// SessionUpdate encodes a session.update message.
func SessionUpdate(cfg SessionConfig) ([]byte, error) {
	return json.Marshal(sessionUpdate{Type: EventSessionUpdate, Session: cfg})
}

// ResponseCreate encodes a response.create message, asking the agent to speak.
func ResponseCreate() []byte {
	b, _ := json.Marshal(responseCreate{Type: EventResponseCreate})
	return b
}
