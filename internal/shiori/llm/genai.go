package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-2.0-flash"

// GenAIConfig configures the Google GenAI chat backend.
type GenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
}

// GenAI implements Completer with google.golang.org/genai.
type GenAI struct {
	client *genai.Client
	cfg    GenAIConfig
}

// NewGenAI creates a GenAI completer using the Gemini API backend.
func NewGenAI(ctx context.Context, cfg GenAIConfig) (*GenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm genai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGenAIModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm genai: create client: %w", err)
	}
	return &GenAI{client: client, cfg: cfg}, nil
}

// Complete maps the turn list onto GenAI contents. System messages are
// joined into the system instruction; assistant turns become model turns.
func (g *GenAI) Complete(ctx context.Context, req Request) (string, error) {
	contents, system := toGenAIContents(req.Messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("%w: genai: no user or assistant messages", ErrCompletion)
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.cfg.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	temp := req.Temperature
	if temp == nil {
		temp = g.cfg.Temperature
	}
	if temp != nil {
		cfg.Temperature = genai.Ptr(float32(*temp))
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: genai: %w", ErrCompletion, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func toGenAIContents(msgs []Message) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}

// Compile-time interface satisfaction check.
var _ Completer = (*GenAI)(nil)
