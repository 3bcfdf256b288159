// Package credential mints short-lived realtime credentials so the long-lived
// vendor key never leaves the server.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured means no API key is set; no upstream call is made.
var ErrNotConfigured = errors.New("realtime api key not configured")

// Credential is an ephemeral secret for exactly one realtime session.
type Credential struct {
	ClientSecret string `json:"clientSecret"`
	ExpiresAt    int64  `json:"expiresAt,omitempty"`
	AgentID      string `json:"agentId,omitempty"`
}

// UpstreamError reports a non-2xx answer from the credential endpoint.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("client secret request returned %d: %s", e.StatusCode, e.Body)
}

// Options configures a Minter.
type Options struct {
	APIKey             string
	AgentID            string
	BaseURL            string
	Model              string
	Voice              string
	TranscriptionModel string
	HTTPClient         *http.Client
}

// Minter exchanges the server's API key for ephemeral client secrets.
type Minter struct {
	opts Options
}

func NewMinter(opts Options) *Minter {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Minter{opts: opts}
}

type sessionRequest struct {
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Type                    string             `json:"type"`
	Model                   string             `json:"model,omitempty"`
	Voice                   string             `json:"voice,omitempty"`
	InputAudioTranscription *transcriptionSpec `json:"input_audio_transcription,omitempty"`
	TurnDetection           turnDetectionSpec  `json:"turn_detection"`
}

type transcriptionSpec struct {
	Model string `json:"model"`
}

type turnDetectionSpec struct {
	Type string `json:"type"`
}

type secret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// secretResponse accepts both the flat shape and the older nested one.
type secretResponse struct {
	secret
	ClientSecret *secret `json:"client_secret"`
}

// Mint performs one credential request. It never retries.
func (m *Minter) Mint(ctx context.Context) (Credential, error) {
	if m.opts.APIKey == "" {
		return Credential{}, ErrNotConfigured
	}

	cfg := sessionConfig{
		Type:          "realtime",
		Model:         m.opts.Model,
		Voice:         m.opts.Voice,
		TurnDetection: turnDetectionSpec{Type: "server_vad"},
	}
	if m.opts.TranscriptionModel != "" {
		cfg.InputAudioTranscription = &transcriptionSpec{Model: m.opts.TranscriptionModel}
	}
	body, err := json.Marshal(sessionRequest{Session: cfg})
	if err != nil {
		return Credential{}, fmt.Errorf("encode session config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.opts.BaseURL+"/v1/realtime/client_secrets", bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("build client secret request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.opts.HTTPClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("request client secret: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("read client secret response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var parsed secretResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Credential{}, fmt.Errorf("decode client secret response: %w", err)
	}
	s := parsed.secret
	if s.Value == "" && parsed.ClientSecret != nil {
		s = *parsed.ClientSecret
	}
	if s.Value == "" {
		return Credential{}, fmt.Errorf("client secret response carried no value")
	}

	return Credential{ClientSecret: s.Value, ExpiresAt: s.ExpiresAt, AgentID: m.opts.AgentID}, nil
}
