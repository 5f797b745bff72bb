package docs

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/Shiori/internal/shiori/store"
)

// SQLiteRecords serves project records from the affairs table.
type SQLiteRecords struct {
	store *store.Store
}

// NewSQLiteRecords creates a RecordProvider over s.
func NewSQLiteRecords(s *store.Store) *SQLiteRecords {
	return &SQLiteRecords{store: s}
}

// ProjectRecord returns the record for affairID, or nil when unknown.
func (r *SQLiteRecords) ProjectRecord(ctx context.Context, affairID string) (*ProjectRecord, error) {
	a, err := r.store.GetAffair(ctx, affairID)
	if errors.Is(err, store.ErrAffairNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("docs records: %w", err)
	}
	return &ProjectRecord{
		Client:         a.Client,
		Porteur:        a.Porteur,
		Referent:       a.Referent,
		ContactMOAMOEG: a.ContactMOAMOEG,
		Guichet:        a.Guichet,
		Titre:          a.Titre,
		Etat:           a.Etat,
		TypeDemande:    a.TypeDemande,
		Description:    a.Description,
	}, nil
}

// Compile-time interface satisfaction check.
var _ RecordProvider = (*SQLiteRecords)(nil)
