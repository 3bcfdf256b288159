// Package apiclient talks to the Clarity server on behalf of the interview
// client.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

// StatusError is a non-200 answer from the server.
type StatusError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Path, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Credential asks the server for a fresh ephemeral credential.
func (c *Client) Credential(ctx context.Context) (credential.Credential, error) {
	var cred credential.Credential
	if err := c.post(ctx, "/api/realtime-session", nil, &cred); err != nil {
		return credential.Credential{}, err
	}
	if cred.ClientSecret == "" {
		return credential.Credential{}, fmt.Errorf("/api/realtime-session returned no client secret")
	}
	return cred, nil
}

// LogTranscript submits one record. The server answers once the record was
// forwarded; nothing is retried.
func (c *Client) LogTranscript(ctx context.Context, rec transcript.Record) error {
	return c.post(ctx, "/api/log-transcript", rec, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage pulls the "error" (and "message") fields out of a JSON error
// body, falling back to the raw text.
func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		return strings.TrimSpace(string(raw))
	}
	if body.Message != "" {
		return body.Error + ": " + body.Message
	}
	return body.Error
}
