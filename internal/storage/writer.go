package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/engaging-workplace/clarity/internal/transcript"
)

// Writer appends accepted transcript records to one Markdown file per day.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Write satisfies transcript.Sink.
func (w *Writer) Write(_ context.Context, rec transcript.Record) error {
	at, err := rec.Time()
	if err != nil {
		return fmt.Errorf("parse record timestamp: %w", err)
	}
	return w.Append(at, rec)
}

func (w *Writer) Append(at time.Time, rec transcript.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	path := w.PathFor(at)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, FormatMarkdown(at, rec)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// PathFor is the day file holding records stamped at t (UTC day).
func (w *Writer) PathFor(t time.Time) string {
	return filepath.Join(w.dir, t.UTC().Format("2006-01-02")+".md")
}

// FormatMarkdown renders one record as a Markdown line.
func FormatMarkdown(at time.Time, rec transcript.Record) string {
	return fmt.Sprintf("**[%s] %s** (%s): %s",
		at.UTC().Format("15:04:05"),
		speakerLabel(rec.Speaker),
		rec.SessionID,
		strings.TrimSpace(rec.Transcript),
	)
}

func speakerLabel(s transcript.Speaker) string {
	switch s {
	case transcript.SpeakerAgent:
		return "Clarity"
	case transcript.SpeakerParticipant:
		return "Participant"
	default:
		return string(s)
	}
}
