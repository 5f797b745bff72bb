package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bdobrica/Shiori/internal/shiori/oaiwire"
)

const (
	defaultOpenAIModel   = "text-embedding-3-small"
	defaultOpenAITimeout = 30 * time.Second
)

// OpenAIConfig configures the OpenAI-compatible embeddings backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string        // api.openai.com when empty
	Model   string        // text-embedding-3-small when empty
	Timeout time.Duration // 30 s when zero
}

// OpenAI implements Embedder with the /embeddings endpoint. Safe for
// concurrent use.
type OpenAI struct {
	model string
	wire  *oaiwire.Client
}

// NewOpenAI creates an OpenAI-compatible embedder.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOpenAITimeout
	}
	return &OpenAI{
		model: cfg.Model,
		wire: &oaiwire.Client{
			HTTP:    &http.Client{Timeout: cfg.Timeout},
			BaseURL: oaiwire.NormalizeBaseURL(cfg.BaseURL),
			APIKey:  cfg.APIKey,
		},
	}
}

type embedRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embedResponse struct {
	oaiwire.ErrorBody
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed returns the vector of text, or nil for empty text. Every failure
// wraps ErrEmbedding.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}
	var resp embedResponse
	if err := e.wire.Post(ctx, "/embeddings", embedRequest{Input: text, Model: e.model}, &resp); err != nil {
		return nil, fmt.Errorf("%w: openai: %w", ErrEmbedding, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai: no embedding data returned", ErrEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

var _ Embedder = (*OpenAI)(nil)
