package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIKeyHeader authenticates the server to the intermediary logging service.
const APIKeyHeader = "X-API-Key"

// UpstreamError reports a non-2xx answer from the logging service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("logging service returned %d: %s", e.StatusCode, e.Body)
}

// Relay forwards records unchanged to the intermediary logging service.
type Relay struct {
	url    string
	apiKey string
	client *http.Client
}

// NewRelay builds a relay; a nil client gets a 15 second timeout.
func NewRelay(url, apiKey string, client *http.Client) *Relay {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Relay{url: strings.TrimSpace(url), apiKey: apiKey, client: client}
}

func (r *Relay) Write(ctx context.Context, rec Record) error {
	if r.url == "" || r.apiKey == "" {
		return fmt.Errorf("%w: logging service url or api key missing", ErrNotConfigured)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("relay transcript: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &UpstreamError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
