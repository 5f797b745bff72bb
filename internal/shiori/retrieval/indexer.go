package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/embedding"
	"github.com/bdobrica/Shiori/internal/shiori/files"
	"github.com/bdobrica/Shiori/internal/shiori/kv"
)

// defaultIndexConcurrency is the number of documents embedded in parallel.
const defaultIndexConcurrency = 4

// IndexStats summarises one Build run.
type IndexStats struct {
	AffairID  string        `json:"affairId"`
	Documents int           `json:"documents"`
	Passages  int           `json:"passages"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Indexer precomputes the passage index of an affair. Passages are chunked
// exactly as on-the-fly retrieval does.
type Indexer struct {
	embedder    embedding.Embedder
	texts       docs.TextProvider
	lister      docs.Lister
	kv          kv.Store
	concurrency int
	logger      *slog.Logger
}

// NewIndexer creates an indexer.
func NewIndexer(e embedding.Embedder, texts docs.TextProvider, lister docs.Lister, kvs kv.Store, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		embedder:    e,
		texts:       texts,
		lister:      lister,
		kv:          kvs,
		concurrency: defaultIndexConcurrency,
		logger:      logger,
	}
}

// Build indexes every pdf, txt and csv document of affairID and replaces the
// stored index. Passages whose embedding fails are skipped and counted.
func (ix *Indexer) Build(ctx context.Context, affairID string) (IndexStats, error) {
	start := time.Now()
	stats := IndexStats{AffairID: affairID}
	if affairID == "" {
		return stats, fmt.Errorf("retrieval: index: affair id is required")
	}

	keys, err := files.ListAll(ctx, ix.lister, docs.AffairPrefix(affairID))
	if err != nil {
		return stats, fmt.Errorf("retrieval: index %s: %w", affairID, err)
	}
	all := keys.All()

	perDoc := make([][]IndexEntry, len(all))
	skipped := make([]int, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i, key := range all {
		g.Go(func() error {
			text, err := ix.texts.DocumentText(gctx, key)
			if err != nil {
				ix.logger.Warn("retrieval: index: document unreadable", "key", key, "err", err)
				return nil
			}
			for _, p := range Chunk(text) {
				vec, err := ix.embedder.Embed(gctx, p)
				if err != nil || len(vec) == 0 {
					skipped[i]++
					continue
				}
				perDoc[i] = append(perDoc[i], IndexEntry{Key: key, Text: p, Embedding: vec})
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("retrieval: index %s: %w", affairID, err)
	}

	entries := make([]IndexEntry, 0)
	for i := range all {
		if len(perDoc[i]) > 0 {
			stats.Documents++
		}
		entries = append(entries, perDoc[i]...)
		stats.Skipped += skipped[i]
	}
	stats.Passages = len(entries)

	if err := kv.SetJSON(ctx, ix.kv, IndexKey(affairID), entries, 0); err != nil {
		return stats, fmt.Errorf("retrieval: index %s: store: %w", affairID, err)
	}
	stats.Duration = time.Since(start)
	ix.logger.Info("retrieval: affair indexed",
		"affair_id", affairID, "documents", stats.Documents,
		"passages", stats.Passages, "skipped", stats.Skipped, "duration", stats.Duration)
	return stats, nil
}
