package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAffairNotFound is returned by GetAffair when no row matches the id.
var ErrAffairNotFound = errors.New("store: affair not found")

// Affair is the portal's structured project record as seen by the assistant.
// Field names follow the portal's French schema.
type Affair struct {
	ID             string    `json:"id" yaml:"id"`
	Titre          string    `json:"titre" yaml:"titre"`
	Etat           string    `json:"etat" yaml:"etat"`
	TypeDemande    string    `json:"type_demande" yaml:"type_demande"`
	Description    string    `json:"description" yaml:"description"`
	Client         string    `json:"client" yaml:"client"`
	Porteur        string    `json:"porteur" yaml:"porteur"`
	Referent       string    `json:"referent" yaml:"referent"`
	ContactMOAMOEG string    `json:"contact_moa_moeg" yaml:"contact_moa_moeg"`
	Guichet        string    `json:"guichet" yaml:"guichet"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// UpsertAffair inserts or replaces the affair row. The portal's sync job is
// the normal writer; tests and the CLI seed rows through it too.
func (s *Store) UpsertAffair(ctx context.Context, a *Affair) error {
	a.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO affairs (id, titre, etat, type_demande, description, client,
		                     porteur, referent, contact_moa_moeg, guichet, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			titre            = excluded.titre,
			etat             = excluded.etat,
			type_demande     = excluded.type_demande,
			description      = excluded.description,
			client           = excluded.client,
			porteur          = excluded.porteur,
			referent         = excluded.referent,
			contact_moa_moeg = excluded.contact_moa_moeg,
			guichet          = excluded.guichet,
			updated_at       = excluded.updated_at
	`, a.ID, a.Titre, a.Etat, a.TypeDemande, a.Description, a.Client,
		a.Porteur, a.Referent, a.ContactMOAMOEG, a.Guichet, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert affair %s: %w", a.ID, err)
	}
	return nil
}

// GetAffair retrieves an affair by id. Returns ErrAffairNotFound when absent.
func (s *Store) GetAffair(ctx context.Context, id string) (*Affair, error) {
	a := &Affair{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, titre, etat, type_demande, description, client,
		       porteur, referent, contact_moa_moeg, guichet, updated_at
		FROM affairs
		WHERE id = ?
	`, id).Scan(
		&a.ID, &a.Titre, &a.Etat, &a.TypeDemande, &a.Description, &a.Client,
		&a.Porteur, &a.Referent, &a.ContactMOAMOEG, &a.Guichet, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAffairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get affair: %w", err)
	}
	return a, nil
}

// AffairCount returns the number of affair rows, reported by /status.
func (s *Store) AffairCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM affairs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count affairs: %w", err)
	}
	return n, nil
}
