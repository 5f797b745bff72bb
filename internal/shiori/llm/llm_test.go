package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Shiori/common/retry"
)

func fastRetry(next Completer) *Retrying {
	return NewRetrying(next, nil).WithConfig(retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
	})
}

func TestRetrying_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	r := fastRetry(CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		if calls < 3 {
			return "", ErrCompletion
		}
		return "ok", nil
	}))

	got, err := r.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetrying_GivesUpAndWraps(t *testing.T) {
	calls := 0
	r := fastRetry(CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		return "", errors.New("boom")
	}))

	_, err := r.Complete(context.Background(), Request{})
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("err = %v, want ErrCompletion", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrying_DoesNotRetryCancellation(t *testing.T) {
	calls := 0
	r := fastRetry(CompleterFunc(func(context.Context, Request) (string, error) {
		calls++
		return "", context.Canceled
	}))

	_, _ = r.Complete(context.Background(), Request{})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestOpenAI_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected Authorization header: %s", r.Header.Get("Authorization"))
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		if req.MaxTokens != 300 {
			t.Errorf("max_tokens = %d, want 300 from config", req.MaxTokens)
		}
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("temperature = %v, want 0 from request", req.Temperature)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"intent\":\"x\"}\n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/",
		MaxTokens:   300,
		Temperature: Temperature(0.7),
	})
	got, err := p.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "extract"},
			{Role: RoleUser, Content: "résume ce devis"},
		},
		Temperature: Temperature(0),
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"intent":"x"}` {
		t.Errorf("Complete = %q", got)
	}
}

func TestOpenAI_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow","type":"rate_limit"}}`},
		{"api error", http.StatusBadRequest, `{"error":{"message":"bad","type":"invalid_request"}}`},
		{"no choices", http.StatusOK, `{"choices":[]}`},
		{"server error", http.StatusInternalServerError, `{}`},
		{"html body", http.StatusBadGateway, "<html>sk-live-secret</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOpenAI(OpenAIConfig{APIKey: "sk-live-secret", BaseURL: srv.URL})
			_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
			if !errors.Is(err, ErrCompletion) {
				t.Fatalf("err = %v, want ErrCompletion", err)
			}
			if strings.Contains(err.Error(), "sk-live-secret") {
				t.Errorf("error leaks API key: %v", err)
			}
		})
	}
}

func TestToGenAIContents(t *testing.T) {
	contents, system := toGenAIContents([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "r"},
		{Role: RoleSystem, Content: "b"},
	})
	if system != "a\n\nb" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("len(contents) = %d, want 2", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("roles = %q, %q", contents[0].Role, contents[1].Role)
	}
}
