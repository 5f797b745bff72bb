package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Shiori/internal/shiori/kv"
)

const (
	turnLogPrefix = "turns:"

	// DefaultTurnLogTTL is how long the turn log of an idle user survives.
	DefaultTurnLogTTL = 7 * 24 * time.Hour

	// DefaultTurnLogMax bounds the number of entries kept per user.
	DefaultTurnLogMax = 200
)

// TurnLogEntry is one displayed exchange. The log feeds UI history views
// only; generation never reads it.
type TurnLogEntry struct {
	ID       string    `json:"id"`
	At       time.Time `json:"at"`
	AffairID string    `json:"affairId,omitempty"`
	Strategy string    `json:"strategy"`
	Message  string    `json:"message"`
	Reply    string    `json:"reply"`
}

// TurnLog appends exchanges under "turns:<userID>" with a sliding TTL.
type TurnLog struct {
	kv  kv.Store
	ttl time.Duration
	max int
	now func() time.Time
}

// NewTurnLog creates a turn log. Zero values select the defaults.
func NewTurnLog(kvs kv.Store, ttl time.Duration, max int) *TurnLog {
	if ttl <= 0 {
		ttl = DefaultTurnLogTTL
	}
	if max <= 0 {
		max = DefaultTurnLogMax
	}
	return &TurnLog{kv: kvs, ttl: ttl, max: max, now: time.Now}
}

// TurnLogKey returns the kv key of the turn log of userID.
func TurnLogKey(userID string) string { return turnLogPrefix + userID }

// Append adds e to the log of userID, assigning ID and At when unset.
func (l *TurnLog) Append(ctx context.Context, userID string, e TurnLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = l.now().UTC()
	}

	entries, err := l.List(ctx, userID)
	if err != nil {
		entries = nil
	}
	entries = append(entries, e)
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	if err := kv.SetJSON(ctx, l.kv, TurnLogKey(userID), entries, l.ttl); err != nil {
		return fmt.Errorf("memory: append turn log: %w", err)
	}
	return nil
}

// List returns the logged exchanges of userID, oldest first.
func (l *TurnLog) List(ctx context.Context, userID string) ([]TurnLogEntry, error) {
	var entries []TurnLogEntry
	err := kv.GetJSON(ctx, l.kv, TurnLogKey(userID), &entries)
	if errors.Is(err, kv.ErrNotFound) {
		return []TurnLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read turn log: %w", err)
	}
	return entries, nil
}
