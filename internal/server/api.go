package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/storage"
	"github.com/engaging-workplace/clarity/internal/summary"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxRecordBytes bounds a log-transcript body.
const maxRecordBytes = 1 << 20

// CredentialMinter mints one ephemeral realtime credential.
type CredentialMinter interface {
	Mint(ctx context.Context) (credential.Credential, error)
}

// InterviewStore serves the local interview history.
type InterviewStore interface {
	GetInterviewsByDate(date string) ([]storage.Interview, error)
	GetInterview(id string) (storage.Interview, error)
	GetTranscripts(sessionID string) ([]transcript.Record, error)
	GetDates() ([]string, error)
}

// SummaryRequester starts a background interview summary.
type SummaryRequester interface {
	Request(sessionID string) error
}

func registerAPIRoutes(mux *http.ServeMux, d Deps) {
	mux.HandleFunc("POST /api/realtime-session", func(w http.ResponseWriter, r *http.Request) {
		log := zerolog.Ctx(r.Context())
		if d.Minter == nil {
			observability.RecordCredential("unconfigured")
			writeJSONError(w, http.StatusInternalServerError, "Missing API key")
			return
		}

		cred, err := d.Minter.Mint(r.Context())
		if err != nil {
			if errors.Is(err, credential.ErrNotConfigured) {
				observability.RecordCredential("unconfigured")
				writeJSONError(w, http.StatusInternalServerError, "Missing API key")
				return
			}
			observability.RecordCredential("error")
			log.Error().Err(err).Msg("mint realtime credential")

			body := map[string]any{"error": "Failed to create session"}
			var upstream *credential.UpstreamError
			if errors.As(err, &upstream) {
				body["upstreamStatus"] = upstream.StatusCode
			}
			writeJSON(w, http.StatusBadGateway, body)
			return
		}

		observability.RecordCredential("ok")
		writeJSON(w, http.StatusOK, cred)
	})

	mux.HandleFunc("POST /api/log-transcript", func(w http.ResponseWriter, r *http.Request) {
		log := zerolog.Ctx(r.Context())

		rec, err := decodeRecord(r.Body)
		if err != nil {
			observability.RecordTranscript(d.SinkName, "invalid")
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if d.Sink == nil {
			observability.RecordTranscript(d.SinkName, "unconfigured")
			writeJSONError(w, http.StatusInternalServerError, "Transcript logger not configured")
			return
		}

		if err := d.Sink.Write(r.Context(), rec); err != nil {
			if errors.Is(err, transcript.ErrNotConfigured) {
				observability.RecordTranscript(d.SinkName, "unconfigured")
				writeJSONError(w, http.StatusInternalServerError, "Transcript logger not configured")
				return
			}
			observability.RecordTranscript(d.SinkName, "error")
			log.Error().Err(err).Str("session_id", rec.SessionID).Msg("log transcript")
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "Failed to log transcript",
				"message": err.Error(),
			})
			return
		}

		observability.RecordTranscript(d.SinkName, "ok")
		if d.Hub != nil {
			d.Hub.BroadcastTranscriptLogged(rec)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if !requireStore(w, d.Store) {
			return
		}
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			writeJSONError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}

		interviews, err := d.Store.GetInterviewsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		if interviews == nil {
			interviews = []storage.Interview{}
		}
		writeJSON(w, http.StatusOK, interviews)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireStore(w, d.Store) {
			return
		}
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		interview, err := d.Store.GetInterview(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		records, err := d.Store.GetTranscripts(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session transcripts: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session":     interview,
			"transcripts": records,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		if !requireStore(w, d.Store) {
			return
		}
		dates, err := d.Store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, http.StatusOK, dates)
	})

	mux.HandleFunc("POST /api/sessions/{id}/summary", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		if d.Summaries == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "summaries not configured")
			return
		}

		err := d.Summaries.Request(sessionID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": storage.SummaryPending})
		case errors.Is(err, sql.ErrNoRows):
			writeJSONError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, summary.ErrDuplicate):
			writeJSONError(w, http.StatusConflict, err.Error())
		case errors.Is(err, summary.ErrTooShort):
			writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("request summary: %v", err))
		}
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if d.Warnings != nil {
			warnings = d.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sink":      d.SinkName,
			"summaries": d.Summaries != nil,
			"warnings":  warnings,
		})
	})
}

// decodeRecord reads and validates one transcript record.
func decodeRecord(body io.Reader) (transcript.Record, error) {
	var rec transcript.Record
	dec := json.NewDecoder(io.LimitReader(body, maxRecordBytes))
	if err := dec.Decode(&rec); err != nil {
		return transcript.Record{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return transcript.Record{}, err
	}
	return rec, nil
}

func requireStore(w http.ResponseWriter, store InterviewStore) bool {
	if store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "interview history not configured")
		return false
	}
	return true
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
