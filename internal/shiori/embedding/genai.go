package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGenAIModel = "text-embedding-004"

// GenAIConfig configures the Google GenAI embeddings backend.
type GenAIConfig struct {
	APIKey string
	// Model defaults to text-embedding-004.
	Model string
}

// GenAI implements Embedder with google.golang.org/genai.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI creates a GenAI embedder using the Gemini API backend.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding genai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding genai: create client: %w", err)
	}
	return &GenAI{client: client, model: cfg.Model}, nil
}

// Embed requests a retrieval-document embedding for text.
func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, nil
	}

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: genai: %v", ErrEmbedding, err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: genai: no embedding data returned", ErrEmbedding)
	}
	return result.Embeddings[0].Values, nil
}

// Compile-time interface satisfaction check.
var _ Embedder = (*GenAI)(nil)
