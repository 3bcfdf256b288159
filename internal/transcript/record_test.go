package transcript

import (
	"errors"
	"testing"
	"time"
)

func TestNewRecordFormatsUTCMillis(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 11, 12, 345_000_000, time.FixedZone("CET", 3600))
	rec := NewRecord(at, "session-1", SpeakerAgent, "Question 1. How are you?")

	if rec.Timestamp != "2025-03-04T09:11:12.345Z" {
		t.Fatalf("unexpected timestamp %q", rec.Timestamp)
	}
	if err := rec.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Record{
		Timestamp:  "2025-03-04T09:11:12.345Z",
		SessionID:  "session-1",
		Speaker:    SpeakerParticipant,
		Transcript: "fine thanks",
	}

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{name: "missing timestamp", mutate: func(r *Record) { r.Timestamp = "" }},
		{name: "missing session", mutate: func(r *Record) { r.SessionID = " " }},
		{name: "missing speaker", mutate: func(r *Record) { r.Speaker = "" }},
		{name: "blank transcript", mutate: func(r *Record) { r.Transcript = "  " }},
		{name: "bad timestamp", mutate: func(r *Record) { r.Timestamp = "yesterday" }},
		{name: "unknown speaker", mutate: func(r *Record) { r.Speaker = "narrator" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := valid
			tc.mutate(&rec)
			if err := rec.Validate(); !errors.Is(err, ErrInvalidRecord) {
				t.Fatalf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}
