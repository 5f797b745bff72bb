package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bdobrica/Shiori/internal/shiori/kv"
)

const keyPrefix = "memory:"

// Key returns the kv key holding the memory of userID.
func Key(userID string) string { return keyPrefix + userID }

// Store loads and saves SessionMemory through a kv.Store. Memory entries
// never expire.
type Store struct {
	kv         kv.Store
	logger     *slog.Logger
	historyCap int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithHistoryCap keeps only the last n history records on Save. Zero keeps
// the full history.
func WithHistoryCap(n int) StoreOption {
	return func(s *Store) { s.historyCap = n }
}

// NewStore creates a memory store over kvs.
func NewStore(kvs kv.Store, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{kv: kvs, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns the memory of userID. A missing entry yields an empty memory.
// An unparseable entry is logged and replaced by an empty memory.
func (s *Store) Load(ctx context.Context, userID string) (*SessionMemory, error) {
	raw, err := s.kv.Get(ctx, Key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: load %s: %w", userID, err)
	}

	m := New()
	if err := json.Unmarshal(raw, m); err != nil {
		s.logger.Warn("memory: stored state is corrupt, reinitialising",
			"user_id", userID, "err", err)
		return New(), nil
	}
	m.normalize()
	return m, nil
}

// Save overwrites the memory of userID.
func (s *Store) Save(ctx context.Context, userID string, m *SessionMemory) error {
	m.CapHistory(s.historyCap)
	m.normalize()
	if err := kv.SetJSON(ctx, s.kv, Key(userID), m, 0); err != nil {
		return fmt.Errorf("memory: save %s: %w", userID, err)
	}
	return nil
}

// Reset deletes the memory of userID.
func (s *Store) Reset(ctx context.Context, userID string) error {
	if err := s.kv.Delete(ctx, Key(userID)); err != nil {
		return fmt.Errorf("memory: reset %s: %w", userID, err)
	}
	return nil
}
