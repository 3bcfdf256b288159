package rtc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	opusClockRate = 48000
	opusChannels  = 2
	frameDuration = 20 * time.Millisecond
)

// silenceFrame is a single 20ms Opus frame that decodes to silence.
var silenceFrame = []byte{0xf8, 0xff, 0xfe}

// AudioSource produces the participant's Opus samples. ReadSample returns
// io.EOF once the source is exhausted.
type AudioSource interface {
	ReadSample() (media.Sample, error)
	Close() error
}

// SilenceSource emits Opus silence forever.
type SilenceSource struct{}

func (SilenceSource) ReadSample() (media.Sample, error) {
	return media.Sample{Data: silenceFrame, Duration: frameDuration}, nil
}

func (SilenceSource) Close() error { return nil }

// OggSource plays Opus pages from an Ogg container.
type OggSource struct {
	reader      *oggreader.OggReader
	closer      io.Closer
	lastGranule uint64
}

// NewOggSource reads an Ogg/Opus stream. If r is an io.Closer it is closed
// by Close.
func NewOggSource(r io.Reader) (*OggSource, error) {
	// Opus always runs at 48kHz; the header's rate is only the input rate.
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	src := &OggSource{reader: reader}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src, nil
}

// OpenOggSource opens an Ogg/Opus file.
func OpenOggSource(path string) (*OggSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	src, err := NewOggSource(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return src, nil
}

func (s *OggSource) ReadSample() (media.Sample, error) {
	for {
		page, header, err := s.reader.ParseNextPage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return media.Sample{}, io.EOF
			}
			return media.Sample{}, fmt.Errorf("read ogg page: %w", err)
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}

		samples := header.GranulePosition - s.lastGranule
		if header.GranulePosition < s.lastGranule {
			samples = 0
		}
		s.lastGranule = header.GranulePosition
		duration := time.Duration(samples) * time.Second / opusClockRate
		return media.Sample{Data: page, Duration: duration}, nil
	}
}

func (s *OggSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenSource returns the Ogg file at path, or silence when path is empty.
func OpenSource(path string) (AudioSource, error) {
	if path == "" {
		return SilenceSource{}, nil
	}
	return OpenOggSource(path)
}
