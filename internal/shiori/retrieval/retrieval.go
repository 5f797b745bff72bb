// Package retrieval ranks document passages against a query by embedding
// cosine similarity. Passages come either from chunking documents on the
// fly or from a per-affair index precomputed by the Indexer.
package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/embedding"
	"github.com/bdobrica/Shiori/internal/shiori/kv"
)

const (
	// DefaultTopK is the number of passages returned per query.
	DefaultTopK = 2

	// MinParagraphLen is the shortest paragraph, in characters, kept as a
	// passage.
	MinParagraphLen = 30
)

// Result is one ranked passage. Results are never persisted.
type Result struct {
	SourceKey   string  `json:"sourceKey"`
	PassageText string  `json:"passageText"`
	Score       float64 `json:"score"`
}

// IndexEntry is one precomputed passage stored under IndexKey.
type IndexEntry struct {
	Key       string    `json:"key,omitempty"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// IndexKey returns the kv key of the passage index of affairID.
func IndexKey(affairID string) string { return "index:" + affairID }

// Chunk splits text into blank-line separated paragraphs and keeps those of
// at least MinParagraphLen characters.
func Chunk(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	var cur []string
	flush := func() {
		if len(cur) == 0 {
			return
		}
		p := strings.TrimSpace(strings.Join(cur, "\n"))
		cur = cur[:0]
		if len([]rune(p)) >= MinParagraphLen {
			out = append(out, p)
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

// Retriever ranks passages for a query.
type Retriever struct {
	embedder embedding.Embedder
	texts    docs.TextProvider
	kv       kv.Store
	topK     int
	logger   *slog.Logger
}

// NewRetriever creates a retriever returning DefaultTopK passages.
func NewRetriever(e embedding.Embedder, texts docs.TextProvider, kvs kv.Store, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: e, texts: texts, kv: kvs, topK: DefaultTopK, logger: logger}
}

// Corpus selects what Retrieve searches. When AffairID has a stored index,
// that index is used; otherwise Keys are chunked and embedded on the fly.
type Corpus struct {
	AffairID string
	Keys     []string
}

// Retrieve returns the top passages for query from corpus. It never fails:
// any problem yields fewer or no results.
func (r *Retriever) Retrieve(ctx context.Context, query string, corpus Corpus) []Result {
	if corpus.AffairID != "" {
		entries, err := r.loadIndex(ctx, corpus.AffairID)
		if err == nil && len(entries) > 0 {
			return r.rankIndexed(ctx, query, entries)
		}
	}
	return r.OnTheFly(ctx, query, corpus.Keys)
}

// OnTheFly fetches, chunks and embeds every document in keys, then ranks the
// passages against query. Unreadable documents and passages whose embedding
// fails are skipped.
func (r *Retriever) OnTheFly(ctx context.Context, query string, keys []string) []Result {
	if len(keys) == 0 {
		return []Result{}
	}
	qv := r.embedQuery(ctx, query)
	if qv == nil {
		return []Result{}
	}

	var scored []Result
	for _, key := range keys {
		text, err := r.texts.DocumentText(ctx, key)
		if err != nil {
			r.logger.Debug("retrieval: document skipped", "key", key, "err", err)
			continue
		}
		for _, p := range Chunk(text) {
			pv, err := r.embedder.Embed(ctx, p)
			if err != nil || len(pv) == 0 {
				continue
			}
			scored = append(scored, Result{SourceKey: key, PassageText: p, Score: embedding.CosineSimilarity(qv, pv)})
		}
	}
	return r.top(scored)
}

// Indexed ranks the stored index of affairID against query.
func (r *Retriever) Indexed(ctx context.Context, query, affairID string) []Result {
	entries, err := r.loadIndex(ctx, affairID)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			r.logger.Warn("retrieval: index unreadable", "affair_id", affairID, "err", err)
		}
		return []Result{}
	}
	return r.rankIndexed(ctx, query, entries)
}

func (r *Retriever) rankIndexed(ctx context.Context, query string, entries []IndexEntry) []Result {
	if len(entries) == 0 {
		return []Result{}
	}
	qv := r.embedQuery(ctx, query)
	if qv == nil {
		return []Result{}
	}
	scored := make([]Result, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		scored = append(scored, Result{SourceKey: e.Key, PassageText: e.Text, Score: embedding.CosineSimilarity(qv, e.Embedding)})
	}
	return r.top(scored)
}

func (r *Retriever) loadIndex(ctx context.Context, affairID string) ([]IndexEntry, error) {
	var entries []IndexEntry
	if err := kv.GetJSON(ctx, r.kv, IndexKey(affairID), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) []float32 {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	qv, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("retrieval: query embedding failed", "err", err)
		return nil
	}
	if len(qv) == 0 {
		return nil
	}
	return qv
}

// top sorts by descending score, keeping original order among ties.
func (r *Retriever) top(scored []Result) []Result {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > r.topK {
		scored = scored[:r.topK]
	}
	if scored == nil {
		return []Result{}
	}
	return scored
}
