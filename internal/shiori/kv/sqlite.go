package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SQLiteStore is the SQLite-backed Store. Expired rows are hidden from Get
// immediately and physically removed by PurgeExpired.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a Store over db. The kv table must exist (migration
// 0001_kv.sql). If logger is nil, the default slog logger is used.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{db: db, logger: logger, now: time.Now}
}

// SetClock replaces the time source used for TTL bookkeeping.
func (s *SQLiteStore) SetClock(now func() time.Time) { s.now = now }

// Get returns the live value for key or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value     []byte
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv sqlite: get %q: %w", key, err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= s.now().Unix() {
		return nil, ErrNotFound
	}
	return value, nil
}

// Set upserts key with an optional TTL.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now()
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: now.Add(ttl).Unix(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, key, value, expiresAt, now.Unix())
	if err != nil {
		return fmt.Errorf("kv sqlite: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. It is idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv sqlite: delete %q: %w", key, err)
	}
	return nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("kv sqlite: purge expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// Purger periodically calls PurgeExpired on a SQLiteStore.
type Purger struct {
	store    *SQLiteStore
	interval time.Duration
	logger   *slog.Logger

	stopMu sync.Mutex
	stopCh chan struct{}
}

// NewPurger creates a purger running every interval (default 10 minutes).
func NewPurger(store *SQLiteStore, interval time.Duration, logger *slog.Logger) *Purger {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{store: store, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled or Stop is called. Call it in a goroutine.
func (p *Purger) Run(ctx context.Context) {
	p.stopMu.Lock()
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.stopMu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			n, err := p.store.PurgeExpired(ctx)
			if err != nil {
				p.logger.Warn("kv purger: purge failed", "err", err)
				continue
			}
			if n > 0 {
				p.logger.Debug("kv purger: removed expired entries", "count", n)
			}
		}
	}
}

// Stop signals the purger to stop. Safe to call multiple times.
func (p *Purger) Stop() {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()

	if p.stopCh != nil {
		select {
		case <-p.stopCh:
		default:
			close(p.stopCh)
		}
	}
}
