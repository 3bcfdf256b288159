package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// SignalingError is a non-2xx answer to the SDP offer.
type SignalingError struct {
	StatusCode int
	Body       string
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("sdp exchange failed: status %d: %s", e.StatusCode, e.Body)
}

// exchangeSDP posts the local offer and returns the remote answer.
func exchangeSDP(ctx context.Context, client *http.Client, baseURL, model, secret, offer string) (string, error) {
	endpoint := strings.TrimRight(baseURL, "/") + "/v1/realtime"
	if model != "" {
		endpoint += "?model=" + url.QueryEscape(model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("build sdp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post sdp offer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sdp answer: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &SignalingError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if len(body) == 0 {
		return "", errors.New("empty sdp answer")
	}
	return string(body), nil
}
