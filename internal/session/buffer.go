package session

import (
	"regexp"
	"strings"
)

// UtteranceBuffer accumulates streamed agent text until the utterance is
// complete, and keeps completed utterances most-recent-first.
type UtteranceBuffer struct {
	current   strings.Builder
	completed []string
}

// NewUtteranceBuffer creates an empty utterance buffer.
func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

// AddDelta appends streamed text to the current utterance.
func (b *UtteranceBuffer) AddDelta(delta string) {
	b.current.WriteString(delta)
}

// Flush moves the current utterance to the front of the completed list and
// clears it. When the buffer is blank, fallback is used instead. A text equal
// to the most recent completed utterance is not added twice. It returns the
// flushed text, or "" when nothing was added.
func (b *UtteranceBuffer) Flush(fallback string) string {
	text := strings.TrimSpace(b.current.String())
	b.current.Reset()
	if text == "" {
		text = strings.TrimSpace(fallback)
	}
	if text == "" {
		return ""
	}
	if len(b.completed) > 0 && b.completed[0] == text {
		return ""
	}
	b.completed = append([]string{text}, b.completed...)
	return text
}

func (b *UtteranceBuffer) Current() string {
	return b.current.String()
}

// Completed returns a copy of the completed utterances, most recent first.
func (b *UtteranceBuffer) Completed() []string {
	out := make([]string, len(b.completed))
	copy(out, b.completed)
	return out
}

func (b *UtteranceBuffer) Reset() {
	b.current.Reset()
	b.completed = nil
}

var blankPattern = regexp.MustCompile(`(?i)\sblank\s`)

// DisplayText renders fill-in-the-blank prompts ("I am blank with my job")
// with a visible gap.
func DisplayText(text string) string {
	return blankPattern.ReplaceAllString(text, " __________ ")
}
