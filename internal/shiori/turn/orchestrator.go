package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Shiori/common/trace"
	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/embedding"
	"github.com/bdobrica/Shiori/internal/shiori/files"
	"github.com/bdobrica/Shiori/internal/shiori/llm"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/nlp"
	"github.com/bdobrica/Shiori/internal/shiori/observability"
	"github.com/bdobrica/Shiori/internal/shiori/retrieval"
)

// Extractor returns the intent and entities of a message. It must not fail;
// problems degrade to an empty result.
type Extractor interface {
	Extract(ctx context.Context, message string) nlp.ExtractionResult
}

type noopExtractor struct{}

func (noopExtractor) Extract(context.Context, string) nlp.ExtractionResult {
	return nlp.ExtractionResult{Entities: []memory.Entity{}}
}

// Config holds the collaborators of an Orchestrator. Memory, Completer and
// Ladder are required; everything else is optional.
type Config struct {
	Memory     *memory.Store
	TurnLog    *memory.TurnLog
	Compressor *memory.Compressor
	Extractor  Extractor
	Completer  llm.Completer
	Embedder   embedding.Embedder
	Retriever  *retrieval.Retriever
	Texts      docs.TextProvider
	Lister     docs.Lister
	Records    docs.RecordProvider
	Ladder     *nlp.Ladder
	Limiter    *RateLimiter
	Logger     *slog.Logger
	Options    Options
}

// Orchestrator runs turns. It holds no per-user state; concurrent turns of
// the same user race on memory and the last write wins.
type Orchestrator struct {
	memory     *memory.Store
	turnLog    *memory.TurnLog
	compressor *memory.Compressor
	extractor  Extractor
	completer  llm.Completer
	embedder   embedding.Embedder
	retriever  *retrieval.Retriever
	texts      docs.TextProvider
	lister     docs.Lister
	records    docs.RecordProvider
	ladder     *nlp.Ladder
	matcher    *files.Matcher
	limiter    *RateLimiter
	logger     *slog.Logger
	opts       Options
	prompts    Prompts
}

// New creates an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Memory == nil {
		return nil, fmt.Errorf("turn: memory store is required")
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("turn: completer is required")
	}
	if cfg.Ladder == nil {
		return nil, fmt.Errorf("turn: ladder is required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = noopExtractor{}
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embedding.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	opts := cfg.Options.withDefaults()

	return &Orchestrator{
		memory:     cfg.Memory,
		turnLog:    cfg.TurnLog,
		compressor: cfg.Compressor,
		extractor:  cfg.Extractor,
		completer:  cfg.Completer,
		embedder:   cfg.Embedder,
		retriever:  cfg.Retriever,
		texts:      cfg.Texts,
		lister:     cfg.Lister,
		records:    cfg.Records,
		ladder:     cfg.Ladder,
		matcher:    files.NewMatcher(cfg.Ladder),
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
		opts:       opts,
		prompts:    *opts.Prompts,
	}, nil
}

// turnState carries what the strategies of one turn share.
type turnState struct {
	req      Request
	msg      string
	resolved string
	ext      nlp.ExtractionResult
	mem      *memory.SessionMemory
	log      *slog.Logger
	now      time.Time
}

// Handle processes one message. Internal failures never surface as errors:
// the worst outcome is the generic error reply. The returned error is
// non-nil only for requests failing validation (ErrValidation).
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	ctx, traceID := trace.Ensure(ctx)
	log := observability.WithTrace(ctx, o.logger).With("user_id", req.UserID, "affair_id", req.AffairID)
	start := clock()

	resp := o.run(ctx, req, msg, log)
	resp.TraceID = traceID

	log.Info("turn: handled",
		"strategy", resp.Strategy,
		"attached", len(req.AttachedFileKeys),
		"duration", time.Since(start))
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, msg string, log *slog.Logger) *Response {
	if o.limiter != nil && !o.limiter.Allow(req.UserID) {
		return &Response{Reply: o.prompts.RateLimited, Strategy: StrategyRateLimited}
	}

	if o.ladder.IsReset(msg) {
		if err := o.memory.Reset(ctx, req.UserID); err != nil {
			log.Error("turn: memory reset failed", "err", err)
			return o.failed()
		}
		resp := &Response{Reply: o.prompts.ResetAck, Strategy: StrategyReset}
		o.logTurn(ctx, log, req, resp)
		return resp
	}

	mem, err := o.memory.Load(ctx, req.UserID)
	if err != nil {
		log.Error("turn: memory load failed", "err", err)
		return o.failed()
	}

	st := &turnState{
		req:      req,
		msg:      msg,
		resolved: nlp.ResolveReferences(msg, mem),
		mem:      mem,
		log:      log,
		now:      clock(),
	}
	st.ext = o.extractor.Extract(ctx, msg)
	mem.AddGoal(st.ext.Intent)
	mem.AddEntities(st.ext.Entities)

	var resp *Response
	switch {
	case len(req.AttachedFileKeys) == 0 && req.AffairID != "" && o.ladder.IsContactLookup(msg, st.ext.Intent):
		resp = o.shortCircuit(ctx, st, o.contactReply(ctx, st), StrategyContact)
	case o.ladder.IsAmbiguous(st.resolved, st.ext.Intent):
		resp = o.shortCircuit(ctx, st, o.prompts.Clarification, StrategyClarification)
	case len(req.AttachedFileKeys) > 0:
		resp = o.explicitFiles(ctx, st)
	default:
		resp = o.matchAndGenerate(ctx, st)
	}
	if resp.Strategy != StrategyError {
		o.logTurn(ctx, log, req, resp)
	}
	return resp
}

func (o *Orchestrator) failed() *Response {
	return &Response{Reply: o.prompts.GenericError, Strategy: StrategyError}
}

// matchAndGenerate runs file selection, then the global fallback or the
// standard generation.
func (o *Orchestrator) matchAndGenerate(ctx context.Context, st *turnState) *Response {
	keys := o.listKeys(ctx, st)
	sel := o.matcher.Select(st.mem, st.msg, st.resolved, st.ext, keys, st.now)

	fileSpecific := len(sel.Files) > 0 || o.ladder.IsFileSpecific(st.msg)
	if !fileSpecific && !o.ladder.IsUnrelated(st.msg, st.ext.Intent) {
		return o.globalSummary(ctx, st, keys)
	}
	return o.standard(ctx, st, sel, keys)
}

func (o *Orchestrator) listKeys(ctx context.Context, st *turnState) files.Keys {
	if o.lister == nil {
		return files.Keys{}
	}
	keys, err := files.ListAll(ctx, o.lister, docs.AffairPrefix(st.req.AffairID))
	if err != nil {
		st.log.Warn("turn: document listing failed", "err", err)
		return files.Keys{}
	}
	return keys
}

// shortCircuit records a fixed reply without any generation.
func (o *Orchestrator) shortCircuit(ctx context.Context, st *turnState, reply string, s Strategy) *Response {
	st.mem.Append(o.userRecord(st, nil))
	if o.compressor != nil {
		o.compressor.MaybeCompress(ctx, st.mem)
	}
	st.mem.Append(o.assistantRecord(st, reply))
	o.save(ctx, st)
	return &Response{Reply: reply, Strategy: s}
}

// beginGeneration appends the user turn with its embedding and refreshes the
// condensed summary. It returns the query embedding and the index of the
// user record.
func (o *Orchestrator) beginGeneration(ctx context.Context, st *turnState) ([]float32, int) {
	qv, err := o.embedder.Embed(ctx, st.resolved)
	if err != nil {
		st.log.Warn("turn: message embedding failed", "err", err)
		qv = nil
	}
	st.mem.Append(o.userRecord(st, qv))
	idx := len(st.mem.History) - 1
	if o.compressor != nil {
		o.compressor.MaybeCompress(ctx, st.mem)
	}
	return qv, idx
}

// generate performs the main, non-retried completion call.
func (o *Orchestrator) generate(ctx context.Context, st *turnState, msgs []llm.Message) (string, bool) {
	reply, err := o.completer.Complete(ctx, llm.Request{
		Messages:    msgs,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	if err != nil {
		st.log.Error("turn: generation failed", "err", err)
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		st.log.Error("turn: generation returned an empty reply")
		return "", false
	}
	return reply, true
}

// finishGeneration appends the reply, persists memory and computes the
// similar-past hint.
func (o *Orchestrator) finishGeneration(ctx context.Context, st *turnState, reply string, qv []float32, userIdx int) *SimilarPast {
	st.mem.Append(o.assistantRecord(st, reply))
	similar := FindSimilarPast(st.mem.History[:userIdx], qv, o.opts.SimilarThreshold)
	o.save(ctx, st)
	return similar
}

func (o *Orchestrator) userRecord(st *turnState, qv []float32) memory.MessageRecord {
	ts := st.now
	return memory.MessageRecord{Role: memory.RoleUser, Content: st.msg, Embedding: qv, Timestamp: &ts}
}

func (o *Orchestrator) assistantRecord(st *turnState, reply string) memory.MessageRecord {
	ts := clock()
	return memory.MessageRecord{Role: memory.RoleAssistant, Content: reply, Timestamp: &ts}
}

func (o *Orchestrator) save(ctx context.Context, st *turnState) {
	if err := o.memory.Save(ctx, st.req.UserID, st.mem); err != nil {
		st.log.Error("turn: memory save failed", "err", err)
	}
}

func (o *Orchestrator) logTurn(ctx context.Context, log *slog.Logger, req Request, resp *Response) {
	if o.turnLog == nil {
		return
	}
	err := o.turnLog.Append(ctx, req.UserID, memory.TurnLogEntry{
		AffairID: req.AffairID,
		Strategy: string(resp.Strategy),
		Message:  req.Message,
		Reply:    resp.Reply,
	})
	if err != nil {
		log.Warn("turn: turn log append failed", "err", err)
	}
}

// historyMessages converts history records to completion messages. The
// content of the record at resolvedIdx is replaced by resolved.
func historyMessages(records []memory.MessageRecord, resolvedIdx int, resolved string) []llm.Message {
	out := make([]llm.Message, 0, len(records))
	for i, r := range records {
		content := r.Content
		if i == resolvedIdx {
			content = resolved
		}
		role := llm.RoleUser
		if r.Role == memory.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: content})
	}
	return out
}

// recentWithResolved returns the last n history records as messages, with
// the current user turn rewritten to its resolved form.
func recentWithResolved(mem *memory.SessionMemory, n, userIdx int, resolved string) []llm.Message {
	recent := mem.Recent(n)
	offset := len(mem.History) - len(recent)
	return historyMessages(recent, userIdx-offset, resolved)
}
