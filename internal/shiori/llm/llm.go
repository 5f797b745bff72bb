// Package llm defines the chat completion capability consumed by the turn
// orchestrator and its helpers (entity extraction, history condensation),
// together with its OpenAI-compatible and Google GenAI backends.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Shiori/common/retry"
)

// ErrCompletion wraps every failure of a completion backend.
var ErrCompletion = errors.New("llm: completion failed")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the turn list sent to the model.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call.
type Request struct {
	Messages []Message

	// Temperature is the sampling temperature. Nil leaves the backend default.
	Temperature *float64

	// MaxTokens caps the length of the reply. Zero leaves the backend default.
	MaxTokens int

	// JSON asks the backend for a JSON object reply.
	JSON bool
}

// Completer turns an ordered turn list into a reply text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a plain function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Temperature returns a pointer to t for use in Request.
func Temperature(t float64) *float64 { return &t }

// Retrying wraps a Completer with exponential-backoff retries. It is meant for
// helper calls only; the main reply of a turn is never retried.
type Retrying struct {
	next   Completer
	cfg    retry.Config
	logger *slog.Logger
}

// NewRetrying wraps next with retry.DefaultConfig. Context cancellation is
// never retried.
func NewRetrying(next Completer, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := retry.DefaultConfig
	cfg.ShouldRetry = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return &Retrying{next: next, cfg: cfg, logger: logger}
}

// WithConfig returns a copy of r using cfg for its retry schedule.
func (r *Retrying) WithConfig(cfg retry.Config) *Retrying {
	cp := *r
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = r.cfg.ShouldRetry
	}
	cp.cfg = cfg
	return &cp
}

// Complete calls the wrapped Completer until it succeeds or the attempts run
// out. The returned error wraps ErrCompletion.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	cfg := r.cfg
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		r.logger.Warn("llm: helper completion failed, retrying",
			"attempt", attempt, "delay", delay, "err", err)
	}

	out, err := retry.Value(ctx, cfg, func() (string, error) {
		return r.next.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrCompletion) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	return out, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Completer = CompleterFunc(nil)
	_ Completer = (*Retrying)(nil)
)
