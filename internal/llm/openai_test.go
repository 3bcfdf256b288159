package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatCompletion(content string) map[string]any {
	choices := []map[string]any{}
	if content != "" {
		choices = append(choices, map[string]any{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		})
	}
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 123,
		"model":   "gpt-4o-mini",
		"choices": choices,
	}
}

func TestOpenAISummaryRequestCarriesOptions(t *testing.T) {
	requests := make(chan chatRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer oai-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		requests <- req
		_ = json.NewEncoder(w).Encode(chatCompletion("  - Role: nurse\n- Mood: tired  "))
	}))
	defer server.Close()

	client, err := FromSpec("openai/gpt-4o-mini", Keys{OpenAI: "oai-key"},
		WithBaseURL(server.URL+"/v1"), WithMaxTokens(1024), WithTemperature(0.2))
	if err != nil {
		t.Fatalf("FromSpec failed: %v", err)
	}

	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "Summarize the interview."},
		{Role: RoleUser, Content: "Clarity: What is your role?\nParticipant: I am a nurse."},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "- Role: nurse\n- Mood: tired" {
		t.Fatalf("expected trimmed summary, got %q", got)
	}

	req := <-requests
	if req.Model != "gpt-4o-mini" {
		t.Fatalf("expected model gpt-4o-mini, got %q", req.Model)
	}
	if req.MaxTokens != 1024 {
		t.Fatalf("expected max_tokens 1024, got %d", req.MaxTokens)
	}
	if math.Abs(req.Temperature-0.2) > 1e-6 {
		t.Fatalf("expected temperature 0.2, got %v", req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleSystem || req.Messages[1].Role != RoleUser {
		t.Fatalf("unexpected messages: %#v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "Participant: I am a nurse.") {
		t.Fatalf("transcript not forwarded: %q", req.Messages[1].Content)
	}
}

func TestOpenAIWithoutOptionsOmitsLimits(t *testing.T) {
	raw := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		raw <- body
		_ = json.NewEncoder(w).Encode(chatCompletion("ok"))
	}))
	defer server.Close()

	client, err := NewClient("openai", "oai-key", "gpt-4o-mini", WithBaseURL(server.URL+"/v1"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "ping"}}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	body := <-raw
	if _, ok := body["max_tokens"]; ok {
		t.Fatalf("expected no max_tokens without option, got %v", body["max_tokens"])
	}
	if _, ok := body["temperature"]; ok {
		t.Fatalf("expected no temperature without option, got %v", body["temperature"])
	}
}

func TestOpenAINoChoicesIsAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletion(""))
	}))
	defer server.Close()

	client, err := newOpenAIClient("oai-key", "gpt-4o-mini", &clientOptions{baseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("newOpenAIClient failed: %v", err)
	}

	_, err = client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hello"}})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("expected no choices error, got %v", err)
	}
}
