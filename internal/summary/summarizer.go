// Package summary turns a finished interview's stored transcript into a
// short written summary using a configured language model.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/llm"
	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/storage"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

var (
	// ErrDuplicate means a summary of this exact transcript was already
	// requested.
	ErrDuplicate = errors.New("summary already requested for this transcript")

	ErrTooShort = errors.New("transcript too short to summarize")
)

// minWords is the smallest transcript worth a model call.
const minWords = 20

const systemPrompt = `You summarize employee engagement interviews run by Clarity, an AI interviewer.
Write concise markdown with these sections:
- Overall sentiment
- Scale answers (question number and the participant's answer)
- Themes from open-ended answers
- Notable quotes
Do not invent answers the participant did not give.`

// Store is the slice of storage the summarizer needs.
type Store interface {
	GetInterview(id string) (storage.Interview, error)
	GetTranscripts(sessionID string) ([]transcript.Record, error)
	ClaimSummaryRequest(sessionID, fingerprint string) (bool, error)
	UpdateSummary(sessionID, summary, status string) error
}

// Notifier is told about every terminal summary status.
type Notifier func(sessionID, summary, status string)

type Summarizer struct {
	client  llm.Client
	store   Store
	notify  Notifier
	timeout time.Duration
	log     zerolog.Logger

	wg sync.WaitGroup
}

func New(client llm.Client, store Store, notify Notifier) *Summarizer {
	if notify == nil {
		notify = func(string, string, string) {}
	}
	return &Summarizer{
		client:  client,
		store:   store,
		notify:  notify,
		timeout: 2 * time.Minute,
		log:     observability.Component("summary"),
	}
}

// Request validates and claims a summary of the interview's current
// transcript, then generates it in the background. It returns ErrDuplicate
// when nothing changed since the last request.
func (s *Summarizer) Request(sessionID string) error {
	if _, err := s.store.GetInterview(sessionID); err != nil {
		return err
	}
	records, err := s.store.GetTranscripts(sessionID)
	if err != nil {
		return err
	}
	text := FormatTranscript(records)
	if len(strings.Fields(text)) < minWords {
		return ErrTooShort
	}

	claimed, err := s.store.ClaimSummaryRequest(sessionID, Fingerprint(text))
	if err != nil {
		return err
	}
	if !claimed {
		return ErrDuplicate
	}
	if err := s.store.UpdateSummary(sessionID, "", storage.SummaryPending); err != nil {
		return fmt.Errorf("mark summary pending: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.run(ctx, sessionID, text)
	}()
	return nil
}

func (s *Summarizer) run(ctx context.Context, sessionID, text string) {
	log := s.log.With().Str("session_id", sessionID).Logger()

	if err := s.store.UpdateSummary(sessionID, "", storage.SummaryRunning); err != nil {
		log.Warn().Err(err).Msg("mark summary running")
	}

	result, err := s.Summarize(ctx, text)
	if err != nil {
		log.Error().Err(err).Msg("summary failed")
		if uerr := s.store.UpdateSummary(sessionID, "", storage.SummaryFailed); uerr != nil {
			log.Warn().Err(uerr).Msg("mark summary failed")
		}
		s.notify(sessionID, "", storage.SummaryFailed)
		return
	}

	if err := s.store.UpdateSummary(sessionID, result, storage.SummaryCompleted); err != nil {
		log.Error().Err(err).Msg("store summary")
		s.notify(sessionID, "", storage.SummaryFailed)
		return
	}
	log.Info().Int("chars", len(result)).Msg("summary completed")
	s.notify(sessionID, result, storage.SummaryCompleted)
}

// Summarize makes a single model call. It does not retry.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	result, err := s.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: text},
	})
	if err != nil {
		return "", fmt.Errorf("complete summary: %w", err)
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return "", errors.New("model returned an empty summary")
	}
	return result, nil
}

// Wait blocks until background summaries finish.
func (s *Summarizer) Wait() {
	s.wg.Wait()
}

// FormatTranscript renders records as one "Speaker: text" line each.
func FormatTranscript(records []transcript.Record) string {
	var b strings.Builder
	for _, rec := range records {
		label := "Participant"
		if rec.Speaker == transcript.SpeakerAgent {
			label = "Clarity"
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(rec.Transcript))
		b.WriteByte('\n')
	}
	return b.String()
}

// Fingerprint identifies a transcript's exact content.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
