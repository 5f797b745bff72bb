package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Shiori/internal/shiori/oaiwire"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOpenAITimeout = 60 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible chat backend. BaseURL points
// it at Ollama, Azure or any compatible server; empty means api.openai.com.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string // gpt-4o-mini when empty

	// MaxTokens and Temperature apply when a Request leaves them unset.
	MaxTokens   int
	Temperature *float64

	Timeout time.Duration // 60 s when zero
}

// OpenAI implements Completer with the chat completions endpoint.
// Safe for concurrent use.
type OpenAI struct {
	cfg  OpenAIConfig
	wire *oaiwire.Client
}

// NewOpenAI returns a Completer backed by an OpenAI-compatible chat API.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	cfg.BaseURL = oaiwire.NormalizeBaseURL(cfg.BaseURL)
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	return &OpenAI{
		cfg: cfg,
		wire: &oaiwire.Client{
			HTTP:    &http.Client{Timeout: cfg.Timeout},
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    *float64      `json:"temperature,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	oaiwire.ErrorBody
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (p *OpenAI) buildRequest(req Request) chatRequest {
	body := chatRequest{
		Model:       p.cfg.Model,
		Messages:    make([]chatMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = p.cfg.MaxTokens
	}
	if body.Temperature == nil {
		body.Temperature = p.cfg.Temperature
	}
	if req.JSON {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}
	return body
}

// Complete returns the first choice's content, trimmed. Every failure wraps
// ErrCompletion.
func (p *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var resp chatResponse
	if err := p.wire.Post(ctx, "/chat/completions", p.buildRequest(req), &resp); err != nil {
		return "", fmt.Errorf("%w: openai: %w", ErrCompletion, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: no choices returned", ErrCompletion)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Completer = (*OpenAI)(nil)
