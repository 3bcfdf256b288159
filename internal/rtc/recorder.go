package rtc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Sink receives the agent's inbound audio packets.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// DiscardSink drops every packet.
type DiscardSink struct{}

func (DiscardSink) WriteRTP(*rtp.Packet) error { return nil }
func (DiscardSink) Close() error               { return nil }

// Recorder writes each session's agent audio to an Ogg/Opus file in dir.
type Recorder struct {
	dir string
	now func() time.Time
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = filepath.Join("data", "recordings")
	}
	return &Recorder{dir: dir, now: time.Now}
}

// Open creates a new recording named after the current time.
func (r *Recorder) Open() (*OggRecording, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("agent-%d.ogg", r.now().UnixMilli()))
	w, err := oggwriter.New(path, opusClockRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &OggRecording{path: path, w: w}, nil
}

// OggRecording is an open Ogg/Opus file. It is safe for concurrent use.
type OggRecording struct {
	path string

	mu sync.Mutex
	w  *oggwriter.OggWriter
}

func (o *OggRecording) Path() string { return o.path }

func (o *OggRecording) WriteRTP(pkt *rtp.Packet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.w == nil {
		return nil
	}
	if err := o.w.WriteRTP(pkt); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	return nil
}

// Close finalizes the file. Later writes are dropped.
func (o *OggRecording) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.w == nil {
		return nil
	}
	w := o.w
	o.w = nil
	if err := w.Close(); err != nil {
		return fmt.Errorf("close recording: %w", err)
	}
	return nil
}
