// Package turn implements the dialogue state machine of the assistant. Each
// call to Orchestrator.Handle processes one user message: it loads session
// memory, resolves references, extracts intent and entities, picks one
// response strategy, calls the completion service when the strategy needs
// it, persists memory and returns the reply.
//
// Strategies are evaluated in a fixed order:
//
//  1. reset           exact reset command, memory cleared
//  2. contact         contact lookup answered from the project record
//  3. clarification   bare continuation or filler message
//  4. explicit_files  documents attached by the caller
//  5. global_summary  no document in play: affair summary, grounded
//                     retrieval answer, or a "please specify a file" prompt
//  6. standard        everything else
package turn

import (
	"errors"
	"time"
)

// ErrValidation is returned by Handle for requests rejected before any state
// is touched. It is the only error Handle returns.
var ErrValidation = errors.New("turn: invalid request")

// Strategy names the response strategy chosen for a turn.
type Strategy string

const (
	StrategyReset         Strategy = "reset"
	StrategyContact       Strategy = "contact"
	StrategyClarification Strategy = "clarification"
	StrategyExplicitFiles Strategy = "explicit_files"
	StrategyGlobalSummary Strategy = "global_summary"
	StrategyStandard      Strategy = "standard"
	StrategyRateLimited   Strategy = "rate_limited"
	StrategyError         Strategy = "error"
)

// Request is one inbound user message.
type Request struct {
	Message          string   `json:"message"`
	UserID           string   `json:"userId"`
	AffairID         string   `json:"affairId,omitempty"`
	AttachedFileKeys []string `json:"attachedFileKeys,omitempty"`
}

// Provenance records what a generated reply was grounded on.
type Provenance struct {
	Files   []string `json:"files,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Prompt  string   `json:"prompt,omitempty"`
}

// SimilarPast points at an earlier question close to the current one, with
// the answer given then. It is a display hint only.
type SimilarPast struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

// Response is the outcome of one turn.
type Response struct {
	Reply       string       `json:"reply"`
	Strategy    Strategy     `json:"strategy"`
	Provenance  *Provenance  `json:"provenance,omitempty"`
	SimilarPast *SimilarPast `json:"similarPast,omitempty"`
	TraceID     string       `json:"traceId,omitempty"`
}

// Options tunes the orchestrator. Zero values select the defaults.
type Options struct {
	// MaxFileChars truncates each document's text before prompting.
	MaxFileChars int
	// HistoryWindow is the number of history records sent on a standard
	// generation.
	HistoryWindow int
	// ExplicitHistoryWindow is the same for attached-file analysis.
	ExplicitHistoryWindow int
	// SimilarThreshold is the cosine score a past question must exceed.
	SimilarThreshold float64
	// Temperature and MaxTokens apply to the main generation call.
	Temperature *float64
	MaxTokens   int
	// Prompts overrides the fixed texts. Zero value means FrenchPrompts.
	Prompts *Prompts
}

const (
	DefaultMaxFileChars          = 20000
	DefaultHistoryWindow         = 15
	DefaultExplicitHistoryWindow = 10
	DefaultSimilarThreshold      = 0.90
)

func (o Options) withDefaults() Options {
	if o.MaxFileChars <= 0 {
		o.MaxFileChars = DefaultMaxFileChars
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.ExplicitHistoryWindow <= 0 {
		o.ExplicitHistoryWindow = DefaultExplicitHistoryWindow
	}
	if o.SimilarThreshold <= 0 {
		o.SimilarThreshold = DefaultSimilarThreshold
	}
	if o.Prompts == nil {
		p := FrenchPrompts
		o.Prompts = &p
	}
	return o
}

// clock is overridden in tests.
var clock = time.Now
