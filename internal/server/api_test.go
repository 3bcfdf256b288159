package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/storage"
	"github.com/engaging-workplace/clarity/internal/summary"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

type minterStub struct {
	cred  credential.Credential
	err   error
	calls int
}

func (m *minterStub) Mint(context.Context) (credential.Credential, error) {
	m.calls++
	return m.cred, m.err
}

type sinkStub struct {
	mu      sync.Mutex
	records []transcript.Record
	err     error
}

func (s *sinkStub) Write(_ context.Context, rec transcript.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

type apiStoreStub struct {
	interviewsByDate map[string][]storage.Interview
	interviews       map[string]storage.Interview
	transcripts      map[string][]transcript.Record
	dates            []string
}

func (s apiStoreStub) GetInterviewsByDate(date string) ([]storage.Interview, error) {
	return s.interviewsByDate[date], nil
}

func (s apiStoreStub) GetInterview(id string) (storage.Interview, error) {
	if iv, ok := s.interviews[id]; ok {
		return iv, nil
	}
	return storage.Interview{}, fmt.Errorf("query interview %s: %w", id, sql.ErrNoRows)
}

func (s apiStoreStub) GetTranscripts(sessionID string) ([]transcript.Record, error) {
	return s.transcripts[sessionID], nil
}

func (s apiStoreStub) GetDates() ([]string, error) {
	return s.dates, nil
}

type summaryStub struct {
	err   error
	calls chan string
}

func (s *summaryStub) Request(sessionID string) error {
	if s.calls != nil {
		s.calls <- sessionID
	}
	return s.err
}

const validBody = `{"timestamp":"2025-03-04T09:11:12.345Z","sessionId":"session-1741079472345","speaker":"clarity","transcript":"Question 1. Overall, I am blank with my job."}`

func serve(t *testing.T, d Deps, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	Handler(d).ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return got
}

func TestRealtimeSessionReturnsCredential(t *testing.T) {
	minter := &minterStub{cred: credential.Credential{ClientSecret: "ek_abc", ExpiresAt: 1741079532}}
	rr := serve(t, Deps{Minter: minter}, http.MethodPost, "/api/realtime-session", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decodeBody(t, rr)
	if got["clientSecret"] != "ek_abc" || got["expiresAt"] != float64(1741079532) {
		t.Fatalf("unexpected body %v", got)
	}
	if _, ok := got["agentId"]; ok {
		t.Fatalf("agentId must be omitted when unset, got %v", got)
	}
}

func TestRealtimeSessionMissingKey(t *testing.T) {
	for name, d := range map[string]Deps{
		"nil minter":     {},
		"not configured": {Minter: &minterStub{err: credential.ErrNotConfigured}},
	} {
		t.Run(name, func(t *testing.T) {
			rr := serve(t, d, http.MethodPost, "/api/realtime-session", "")
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected status 500, got %d", rr.Code)
			}
			if got := decodeBody(t, rr); got["error"] != "Missing API key" {
				t.Fatalf("unexpected body %v", got)
			}
		})
	}
}

func TestRealtimeSessionUpstreamFailure(t *testing.T) {
	minter := &minterStub{err: &credential.UpstreamError{StatusCode: 429, Body: "slow down"}}
	rr := serve(t, Deps{Minter: minter}, http.MethodPost, "/api/realtime-session", "")

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
	got := decodeBody(t, rr)
	if got["error"] != "Failed to create session" || got["upstreamStatus"] != float64(429) {
		t.Fatalf("unexpected body %v", got)
	}
	if minter.calls != 1 {
		t.Fatalf("upstream must be called exactly once, got %d", minter.calls)
	}
}

func TestLogTranscriptForwardsAndBroadcasts(t *testing.T) {
	sink := &sinkStub{}
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	rr := serve(t, Deps{Sink: sink, SinkName: "relay", Hub: hub}, http.MethodPost, "/api/log-transcript", validBody)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr); got["success"] != true {
		t.Fatalf("unexpected body %v", got)
	}
	if len(sink.records) != 1 || sink.records[0].Speaker != transcript.SpeakerAgent {
		t.Fatalf("expected one forwarded record, got %+v", sink.records)
	}

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), `"type":"transcript_logged"`) || !strings.Contains(string(msg), "session-1741079472345") {
			t.Fatalf("unexpected broadcast %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("expected transcript_logged broadcast")
	}
}

func TestLogTranscriptValidation(t *testing.T) {
	tests := map[string]string{
		"invalid json":    `{nope`,
		"missing speaker": `{"timestamp":"2025-03-04T09:11:12.345Z","sessionId":"s","transcript":"hi"}`,
		"unknown speaker": `{"timestamp":"2025-03-04T09:11:12.345Z","sessionId":"s","speaker":"bot","transcript":"hi"}`,
		"bad timestamp":   `{"timestamp":"yesterday","sessionId":"s","speaker":"user","transcript":"hi"}`,
		"empty body":      ``,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			sink := &sinkStub{}
			rr := serve(t, Deps{Sink: sink}, http.MethodPost, "/api/log-transcript", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if len(sink.records) != 0 {
				t.Fatal("invalid records must not be forwarded")
			}
		})
	}
}

func TestLogTranscriptNotConfigured(t *testing.T) {
	for name, d := range map[string]Deps{
		"nil sink":          {},
		"unconfigured sink": {Sink: transcript.Unconfigured("no relay url")},
	} {
		t.Run(name, func(t *testing.T) {
			rr := serve(t, d, http.MethodPost, "/api/log-transcript", validBody)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected status 500, got %d", rr.Code)
			}
			if got := decodeBody(t, rr); got["error"] != "Transcript logger not configured" {
				t.Fatalf("unexpected body %v", got)
			}
		})
	}
}

func TestLogTranscriptUpstreamFailure(t *testing.T) {
	sink := &sinkStub{err: &transcript.UpstreamError{StatusCode: 401, Body: `{"error":"Unauthorized"}`}}
	rr := serve(t, Deps{Sink: sink}, http.MethodPost, "/api/log-transcript", validBody)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	got := decodeBody(t, rr)
	if got["error"] != "Failed to log transcript" {
		t.Fatalf("unexpected error %v", got)
	}
	if msg, _ := got["message"].(string); !strings.Contains(msg, "401") {
		t.Fatalf("expected upstream detail in message, got %q", msg)
	}
}

func TestAPISessionsList(t *testing.T) {
	started := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	store := apiStoreStub{
		interviewsByDate: map[string][]storage.Interview{
			"2025-03-04": {{ID: "session-1", StartedAt: started, Utterances: 12, SummaryStatus: storage.SummaryNone}},
		},
	}

	rr := serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions?date=2025-03-04", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected application/json content-type, got %q", got)
	}
	if !strings.Contains(rr.Body.String(), "session-1") {
		t.Fatalf("expected body to contain session id, got %s", rr.Body.String())
	}

	rr = serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions?date=2025-03-05", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty array for a day without interviews, got %s", rr.Body.String())
	}

	rr = serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions?date=March", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad date, got %d", rr.Code)
	}
}

func TestAPISessionDetail(t *testing.T) {
	started := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	store := apiStoreStub{
		interviews: map[string]storage.Interview{
			"session-1": {ID: "session-1", StartedAt: started, Summary: "Positive", SummaryStatus: storage.SummaryCompleted},
		},
		transcripts: map[string][]transcript.Record{
			"session-1": {transcript.NewRecord(started, "session-1", transcript.SpeakerAgent, "Question 1.")},
		},
	}

	rr := serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions/session-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"transcripts"`) || !strings.Contains(rr.Body.String(), "Question 1.") {
		t.Fatalf("expected detail response to contain transcripts, got %s", rr.Body.String())
	}

	rr = serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions/unknown", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	rr = serve(t, Deps{Store: store}, http.MethodGet, "/api/sessions/bad%20id", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestAPIDates(t *testing.T) {
	rr := serve(t, Deps{Store: apiStoreStub{dates: []string{"2025-03-04", "2025-03-03"}}}, http.MethodGet, "/api/dates", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var got []string
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if len(got) != 2 || got[0] != "2025-03-04" {
		t.Fatalf("unexpected dates %v", got)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	rr := serve(t, Deps{}, http.MethodGet, "/api/dates", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestRequestSummary(t *testing.T) {
	summaries := &summaryStub{calls: make(chan string, 1)}
	rr := serve(t, Deps{Summaries: summaries}, http.MethodPost, "/api/sessions/session-1/summary", "")

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	select {
	case id := <-summaries.calls:
		if id != "session-1" {
			t.Fatalf("unexpected session id %q", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected summary to be requested")
	}
}

func TestRequestSummaryErrors(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		path string
		want int
	}{
		{"not configured", Deps{}, "/api/sessions/session-1/summary", http.StatusServiceUnavailable},
		{"invalid id", Deps{Summaries: &summaryStub{}}, "/api/sessions/%2e%2e/summary", http.StatusForbidden},
		{"unknown session", Deps{Summaries: &summaryStub{err: fmt.Errorf("get: %w", sql.ErrNoRows)}}, "/api/sessions/session-1/summary", http.StatusNotFound},
		{"duplicate", Deps{Summaries: &summaryStub{err: summary.ErrDuplicate}}, "/api/sessions/session-1/summary", http.StatusConflict},
		{"too short", Deps{Summaries: &summaryStub{err: summary.ErrTooShort}}, "/api/sessions/session-1/summary", http.StatusUnprocessableEntity},
		{"store failure", Deps{Summaries: &summaryStub{err: errors.New("disk full")}}, "/api/sessions/session-1/summary", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, tt.deps, http.MethodPost, tt.path, "")
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAPIStatusWithWarnings(t *testing.T) {
	d := Deps{
		SinkName: "relay",
		Warnings: func() []string { return []string{"Transcript relay not configured"} },
	}
	rr := serve(t, d, http.MethodGet, "/api/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	got := decodeBody(t, rr)
	warnings, ok := got["warnings"].([]any)
	if !ok || len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", got["warnings"])
	}
	if got["sink"] != "relay" {
		t.Fatalf("unexpected sink %v", got["sink"])
	}
}

func TestAPIStatusNoWarnings(t *testing.T) {
	rr := serve(t, Deps{}, http.MethodGet, "/api/status", "")
	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Fatalf("expected empty warnings array in response, got %s", rr.Body.String())
	}
}

func TestHealthzAndRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	Handler(Deps{Service: "clarity-server", Version: "test"}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("expected request id echoed, got %q", rr.Header().Get("X-Request-ID"))
	}
	if !strings.Contains(rr.Body.String(), "clarity-server") {
		t.Fatalf("unexpected health body %s", rr.Body.String())
	}
}

func TestMetricsRouteOnlyWhenEnabled(t *testing.T) {
	if rr := serve(t, Deps{}, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rr.Code)
	}
	if rr := serve(t, Deps{Metrics: true}, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with metrics enabled, got %d", rr.Code)
	}
}
