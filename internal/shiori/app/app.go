// Package app wires the Shiori engine together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bdobrica/Shiori/internal/shiori/api"
	"github.com/bdobrica/Shiori/internal/shiori/config"
	"github.com/bdobrica/Shiori/internal/shiori/docs"
	"github.com/bdobrica/Shiori/internal/shiori/embedding"
	"github.com/bdobrica/Shiori/internal/shiori/kv"
	"github.com/bdobrica/Shiori/internal/shiori/llm"
	"github.com/bdobrica/Shiori/internal/shiori/matrix"
	"github.com/bdobrica/Shiori/internal/shiori/memory"
	"github.com/bdobrica/Shiori/internal/shiori/nlp"
	"github.com/bdobrica/Shiori/internal/shiori/retrieval"
	"github.com/bdobrica/Shiori/internal/shiori/store"
	"github.com/bdobrica/Shiori/internal/shiori/turn"
)

// App is the assembled engine. New builds every component without opening
// listeners; Run starts the HTTP server, the Matrix gateway and the kv
// purger.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store   *store.Store
	kv      *kv.SQLiteStore
	purger  *kv.Purger
	memory  *memory.Store
	turnLog *memory.TurnLog
	indexer *retrieval.Indexer
	turns   *turn.Orchestrator
	router  http.Handler

	matrix  *matrix.Client
	gateway *matrix.Gateway
}

// New creates the application from cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("app: initialize database: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, store: st}
	if err := a.build(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	a.kv = kv.NewSQLiteStore(a.store.DB(), logger)
	a.purger = kv.NewPurger(a.kv, cfg.KVPurgeInterval, logger)

	fsDocs, err := docs.NewFSProvider(cfg.DocsRoot)
	if err != nil {
		return fmt.Errorf("app: documents: %w", err)
	}
	records := docs.NewSQLiteRecords(a.store)

	completer, err := newCompleter(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	helper := llm.NewRetrying(completer, logger)

	embedder, err := newEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return err
	}

	patterns, err := cfg.Engine.Patterns()
	if err != nil {
		return fmt.Errorf("app: lexicon: %w", err)
	}
	ladder := nlp.NewLadder(patterns)

	a.memory = memory.NewStore(a.kv, logger, memory.WithHistoryCap(cfg.HistoryCap))
	a.turnLog = memory.NewTurnLog(a.kv, cfg.TurnLogTTL, 0)
	a.indexer = retrieval.NewIndexer(embedder, fsDocs, fsDocs, a.kv, logger)

	var limiter *turn.RateLimiter
	if cfg.TurnRateLimit > 0 {
		limiter = turn.NewRateLimiter(cfg.TurnRateLimit, time.Minute)
	}

	prompts := turn.PromptsFor(cfg.Engine.Language)
	a.turns, err = turn.New(turn.Config{
		Memory:     a.memory,
		TurnLog:    a.turnLog,
		Compressor: memory.NewCompressor(helper, cfg.CompressThreshold, logger),
		Extractor:  nlp.NewExtractor(helper, logger),
		Completer:  completer,
		Embedder:   embedder,
		Retriever:  retrieval.NewRetriever(embedder, fsDocs, a.kv, logger),
		Texts:      fsDocs,
		Lister:     fsDocs,
		Records:    records,
		Ladder:     ladder,
		Limiter:    limiter,
		Logger:     logger,
		Options: turn.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Prompts:     &prompts,
		},
	})
	if err != nil {
		return fmt.Errorf("app: orchestrator: %w", err)
	}

	if cfg.Matrix.Enabled() {
		rooms := make([]string, 0, len(cfg.Engine.Matrix.Rooms))
		for room := range cfg.Engine.Matrix.Rooms {
			rooms = append(rooms, room)
		}
		logger.Info("connecting to Matrix", "homeserver", cfg.Matrix.Homeserver, "rooms", len(rooms))
		a.matrix, err = matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       rooms,
			DB:          a.store.DB(),
		}, logger)
		if err != nil {
			return fmt.Errorf("app: matrix: %w", err)
		}
		a.gateway = matrix.NewGateway(a.turns, a.matrix, cfg.Matrix.UserID, cfg.Engine.Matrix.Rooms, logger)
	}

	a.router = api.NewRouter(api.Deps{
		Turns:         a.turns,
		Memory:        a.memory,
		TurnLog:       a.turnLog,
		Indexer:       a.indexer,
		Status:        a.store,
		APIKey:        cfg.APIKey,
		MatrixEnabled: a.matrix != nil,
		Logger:        logger,
	})
	return nil
}

func newCompleter(ctx context.Context, c config.LLM) (llm.Completer, error) {
	switch c.Provider {
	case config.ProviderGenAI:
		g, err := llm.NewGenAI(ctx, llm.GenAIConfig{
			APIKey:      c.APIKey,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("app: completion backend: %w", err)
		}
		return g, nil
	default:
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
			Timeout:     c.Timeout,
		}), nil
	}
}

func newEmbedder(ctx context.Context, c config.Embedding) (embedding.Embedder, error) {
	switch c.Provider {
	case config.ProviderNoop:
		return embedding.Noop{}, nil
	case config.ProviderGenAI:
		g, err := embedding.NewGenAI(ctx, embedding.GenAIConfig{APIKey: c.APIKey, Model: c.Model})
		if err != nil {
			return nil, fmt.Errorf("app: embedding backend: %w", err)
		}
		return g, nil
	default:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
		}), nil
	}
}

// Turns returns the orchestrator.
func (a *App) Turns() *turn.Orchestrator { return a.turns }

// Indexer returns the affair indexer.
func (a *App) Indexer() *retrieval.Indexer { return a.indexer }

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler { return a.router }

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.purger.Run(ctx)
	defer a.purger.Stop()

	server := api.NewServer(a.cfg.HTTPAddr, a.router, a.logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	if a.matrix != nil {
		if err := a.matrix.Start(ctx, a.gateway.OnEvent); err != nil {
			server.Stop()
			return fmt.Errorf("app: start matrix gateway: %w", err)
		}
	}

	a.logger.Info("shiori is running", "http", server.Addr(), "matrix", a.matrix != nil)
	<-ctx.Done()
	a.logger.Info("shutting down")

	if a.matrix != nil {
		a.matrix.Stop()
		a.gateway.Wait()
	}
	server.Stop()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the database.
func (a *App) Close() error {
	if a.purger != nil {
		a.purger.Stop()
	}
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("app: close database: %w", err)
	}
	return nil
}

// Store returns the database.
func (a *App) Store() *store.Store { return a.store }

// ImportAffairs upserts project records. It stops at the first invalid or
// failing record and returns how many were written.
func (a *App) ImportAffairs(ctx context.Context, affairs []store.Affair) (int, error) {
	for i := range affairs {
		if affairs[i].ID == "" {
			return i, fmt.Errorf("app: affair #%d has no id", i+1)
		}
		if err := a.store.UpsertAffair(ctx, &affairs[i]); err != nil {
			return i, err
		}
	}
	return len(affairs), nil
}
