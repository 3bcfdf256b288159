package credential

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMintWithoutKeyMakesNoUpstreamCall(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	m := NewMinter(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := m.Mint(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected zero upstream calls, got %d", calls)
	}
}

func TestMintSendsSessionConfig(t *testing.T) {
	var gotAuth, gotPath string
	var body map[string]map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"value":"ek_123","expires_at":1735689600}`)
	}))
	defer srv.Close()

	m := NewMinter(Options{
		APIKey:             "sk-test",
		AgentID:            "agent-7",
		BaseURL:            srv.URL + "/",
		Model:              "gpt-4o-realtime-preview-2024-12-17",
		Voice:              "alloy",
		TranscriptionModel: "whisper-1",
		HTTPClient:         srv.Client(),
	})
	cred, err := m.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "/v1/realtime/client_secrets" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	session := body["session"]
	if session["type"] != "realtime" || session["voice"] != "alloy" || session["model"] != "gpt-4o-realtime-preview-2024-12-17" {
		t.Fatalf("unexpected session config: %v", session)
	}
	if cred.ClientSecret != "ek_123" || cred.ExpiresAt != 1735689600 {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if cred.AgentID != "agent-7" {
		t.Fatalf("expected agent id passed through, got %q", cred.AgentID)
	}
}

func TestMintAcceptsNestedSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"client_secret":{"value":"ek_nested","expires_at":42}}`)
	}))
	defer srv.Close()

	cred, err := NewMinter(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}).Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if cred.ClientSecret != "ek_nested" || cred.ExpiresAt != 42 {
		t.Fatalf("unexpected credential %+v", cred)
	}
}

func TestMintUpstreamFailureIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewMinter(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}).Mint(context.Background())

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", upstream.StatusCode)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", calls)
	}
}

func TestMintRejectsEmptySecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	if _, err := NewMinter(Options{APIKey: "k", BaseURL: srv.URL, HTTPClient: srv.Client()}).Mint(context.Background()); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
