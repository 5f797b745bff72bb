package nlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Shiori/internal/shiori/llm"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
)

// ErrExtraction is returned by Parse when a model reply cannot be decoded.
// Extract never returns it; it degrades to an empty result instead.
var ErrExtraction = errors.New("nlp: extraction output rejected")

const extractionSystemPrompt = `You analyse messages sent to a project-management assistant.
Identify the primary intent of the message and list the entities it mentions.
Respond ONLY with a JSON object of the form:
{"intent": "<short phrase>", "entities": [{"type": "<file|document|person|date|amount|function|variable|other>", "value": "<text>"}]}
Use an empty list when there are no entities. Do not add any other field.`

const extractionSchema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string"},
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "value": {"type": ["string", "number", "boolean"]}
        },
        "required": ["type", "value"]
      }
    }
  }
}`

var compiledExtractionSchema = jsonschema.MustCompileString("extraction.json", extractionSchema)

// ExtractionResult is the typed output of the extractor. Entities are hints
// only; the model can mislabel them.
type ExtractionResult struct {
	Intent   string          `json:"intent"`
	Entities []memory.Entity `json:"entities"`
}

// HasEntity reports whether an entity of one of the given types was found.
func (r ExtractionResult) HasEntity(types ...memory.EntityType) bool {
	for _, e := range r.Entities {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
	}
	return false
}

// Extractor asks the completion service for the intent and entities of a
// message.
type Extractor struct {
	completer llm.Completer
	logger    *slog.Logger
}

// NewExtractor creates an extractor. completer should be a retrying
// completer.
func NewExtractor(completer llm.Completer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{completer: completer, logger: logger}
}

// Extract returns the intent and entities of message. Every failure yields
// an empty result.
func (e *Extractor) Extract(ctx context.Context, message string) ExtractionResult {
	raw, err := e.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: extractionSystemPrompt},
			{Role: llm.RoleUser, Content: message},
		},
		Temperature: llm.Temperature(0),
		MaxTokens:   300,
		JSON:        true,
	})
	if err != nil {
		e.logger.Warn("nlp: extraction call failed", "err", err)
		return emptyResult()
	}

	res, err := Parse(raw)
	if err != nil {
		e.logger.Warn("nlp: extraction output discarded", "err", err)
		return emptyResult()
	}
	return res
}

func emptyResult() ExtractionResult {
	return ExtractionResult{Entities: []memory.Entity{}}
}

// Parse decodes and validates a model reply. Markdown code fences around the
// object are tolerated. Entity types outside the closed set map to "other".
func Parse(raw string) (ExtractionResult, error) {
	raw = stripFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return emptyResult(), fmt.Errorf("%w: decode: %v", ErrExtraction, err)
	}
	if err := compiledExtractionSchema.Validate(doc); err != nil {
		return emptyResult(), fmt.Errorf("%w: schema: %v", ErrExtraction, err)
	}

	obj := doc.(map[string]any)
	res := emptyResult()
	if intent, ok := obj["intent"].(string); ok {
		res.Intent = strings.TrimSpace(intent)
	}
	items, _ := obj["entities"].([]any)
	for _, it := range items {
		m := it.(map[string]any)
		value := scalarString(m["value"])
		if value == "" {
			continue
		}
		res.Entities = append(res.Entities, memory.Entity{
			Type:  memory.ParseEntityType(m["type"].(string)),
			Value: value,
		})
	}
	return res, nil
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
