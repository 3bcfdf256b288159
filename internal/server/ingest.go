package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

const (
	IngestService = "clarity-logger"
	IngestVersion = "1.1"
)

// IngestHandler is the intermediary logging service: it authenticates the
// Clarity server by API key and writes each record to the warehouse sink.
func IngestHandler(sink transcript.Sink, apiKey string, metrics bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": IngestService,
			"version": IngestVersion,
		})
	})

	mux.HandleFunc("OPTIONS /{$}", func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+transcript.APIKeyHeader)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /{$}", func(w http.ResponseWriter, r *http.Request) {
		log := zerolog.Ctx(r.Context())
		setCORS(w)

		if !validAPIKey(apiKey, r.Header.Get(transcript.APIKeyHeader)) {
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		rec, err := decodeRecord(r.Body)
		if err != nil {
			observability.RecordTranscript("warehouse", "invalid")
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := sink.Write(r.Context(), rec); err != nil {
			status := "error"
			if errors.Is(err, transcript.ErrNotConfigured) {
				status = "unconfigured"
			}
			observability.RecordTranscript("warehouse", status)
			log.Error().Err(err).Str("session_id", rec.SessionID).Msg("warehouse insert failed")
			writeJSONError(w, http.StatusInternalServerError, "Failed to log")
			return
		}

		observability.RecordTranscript("warehouse", "ok")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	mux.Handle("GET /healthz", observability.HealthCheckHandler(IngestService, IngestVersion))
	if metrics {
		mux.Handle("GET /metrics", observability.MetricsHandler())
	}
	return observability.AccessLog(mux)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// validAPIKey rejects everything when no key is configured.
func validAPIKey(want, got string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
