// Package transcript defines the transcript record exchanged between the
// interview client, the server and the intermediary logging service, and the
// sinks that persist it.
package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerParticipant Speaker = "user"
	SpeakerAgent       Speaker = "clarity"
)

// TimestampLayout is ISO-8601 UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrInvalidRecord is wrapped by every validation failure.
var ErrInvalidRecord = errors.New("invalid transcript record")

// Record is one utterance as it travels to the warehouse. It is never
// mutated after creation.
type Record struct {
	Timestamp  string  `json:"timestamp"`
	SessionID  string  `json:"sessionId"`
	Speaker    Speaker `json:"speaker"`
	Transcript string  `json:"transcript"`
}

// NewRecord stamps an utterance with the given time.
func NewRecord(at time.Time, sessionID string, speaker Speaker, text string) Record {
	return Record{
		Timestamp:  at.UTC().Format(TimestampLayout),
		SessionID:  sessionID,
		Speaker:    speaker,
		Transcript: text,
	}
}

// Valid reports whether s is a known speaker.
func (s Speaker) Valid() bool {
	return s == SpeakerParticipant || s == SpeakerAgent
}

// Time parses the record timestamp.
func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.Timestamp)
}

// Validate checks that all four fields are present and well formed.
func (r Record) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Timestamp) == "" {
		missing = append(missing, "timestamp")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		missing = append(missing, "sessionId")
	}
	if r.Speaker == "" {
		missing = append(missing, "speaker")
	}
	if strings.TrimSpace(r.Transcript) == "" {
		missing = append(missing, "transcript")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRecord, strings.Join(missing, ", "))
	}

	if _, err := r.Time(); err != nil {
		return fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrInvalidRecord, r.Timestamp)
	}
	if !r.Speaker.Valid() {
		return fmt.Errorf("%w: unknown speaker %q", ErrInvalidRecord, r.Speaker)
	}
	return nil
}
