// Package oaiwire carries the HTTP exchange shared by the OpenAI-compatible
// chat and embeddings backends.
package oaiwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bdobrica/Shiori/common/redact"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// APIError is the error object OpenAI-compatible servers embed in a body.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorBody is embedded by response types to capture the error envelope.
type ErrorBody struct {
	Error *APIError `json:"error,omitempty"`
}

// APIErr returns the decoded error envelope, if any.
func (b *ErrorBody) APIErr() *APIError { return b.Error }

// Response is a decoded reply body that may carry an error envelope.
type Response interface {
	APIErr() *APIError
}

// Client posts JSON to one OpenAI-compatible server.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

// NormalizeBaseURL applies the default endpoint and drops trailing slashes.
func NormalizeBaseURL(u string) string {
	if u == "" {
		u = DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// Post sends in to BaseURL+path and decodes the reply into out. An error
// envelope fails the call whatever the status. Messages never carry the API
// key.
func (c *Client) Post(ctx context.Context, path string, in any, out Response) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, redact.Upstream(string(raw), c.APIKey))
	}
	if apiErr := out.APIErr(); apiErr != nil {
		msg := redact.String(apiErr.Message, c.APIKey)
		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rate limit (HTTP 429): %s", msg)
		}
		return fmt.Errorf("API error (%s): %s", apiErr.Type, msg)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}
	return nil
}
