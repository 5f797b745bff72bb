package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Shiori/internal/shiori/llm"
)

// DefaultCompressThreshold is the history length above which the running
// summary is regenerated.
const DefaultCompressThreshold = 10

const compressSystemPrompt = `You condense conversations between a user and a project-management assistant.
Produce a short structured summary with exactly these sections:
Goals: what the user is trying to achieve.
Files mentioned: every document name that came up.
Open questions: what is still unanswered.
Answer in the language of the conversation. Do not invent facts.`

// Compressor regenerates SessionMemory.ContextSummary once the history grows
// past a threshold. History itself is never shortened.
type Compressor struct {
	completer llm.Completer
	threshold int
	logger    *slog.Logger
}

// NewCompressor creates a compressor. completer should be a retrying
// completer; threshold <= 0 uses DefaultCompressThreshold.
func NewCompressor(completer llm.Completer, threshold int, logger *slog.Logger) *Compressor {
	if threshold <= 0 {
		threshold = DefaultCompressThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{completer: completer, threshold: threshold, logger: logger}
}

// MaybeCompress replaces m.ContextSummary with a fresh condensation when the
// history is longer than the threshold. It reports whether the summary was
// updated. Failures and empty replies leave the summary untouched.
func (c *Compressor) MaybeCompress(ctx context.Context, m *SessionMemory) bool {
	if len(m.History) <= c.threshold {
		return false
	}

	summary, err := c.completer.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: compressSystemPrompt},
			{Role: llm.RoleUser, Content: FormatTranscript(m.History)},
		},
		Temperature: llm.Temperature(0.2),
		MaxTokens:   400,
	})
	if err != nil {
		c.logger.Warn("memory: history condensation failed", "history_len", len(m.History), "err", err)
		return false
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return false
	}
	m.ContextSummary = summary
	return true
}

// FormatTranscript renders history as "role: content" lines.
func FormatTranscript(history []MessageRecord) string {
	var b strings.Builder
	for i, r := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", r.Role, r.Content)
	}
	return b.String()
}
