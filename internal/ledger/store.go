package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/cashoffer-funnel/internal/leads"
)

// ErrNotFound is returned by Find when no row carries the lead id.
var ErrNotFound = errors.New("ledger: row not found")

// RowRef locates a row inside a backend (a sheet row number, a primary key).
type RowRef string

// Store is the ledger contract shared by every backend.
type Store interface {
	Find(ctx context.Context, leadID string) (RowRef, Row, error)
	Append(ctx context.Context, row Row) (RowRef, error)
	Update(ctx context.Context, ref RowRef, row Row) error
}

// StoreError wraps a backend failure with its retry classification.
type StoreError struct {
	Op       string
	Err      error
	Rejected bool
	HTTPCode int
}

func (e *StoreError) Error() string {
	if e.HTTPCode != 0 {
		return fmt.Sprintf("ledger: %s: status %d: %v", e.Op, e.HTTPCode, e.Err)
	}
	return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Permanent reports whether the backend refused the request. Retrying a
// refused request does not help.
func (e *StoreError) Permanent() bool { return e.Rejected }

// Upsert writes row in place when the lead already has one and appends it
// otherwise. It is safe to repeat.
func Upsert(ctx context.Context, s Store, row Row) (RowRef, error) {
	ref, _, err := s.Find(ctx, row.LeadID)
	switch {
	case err == nil:
		if err := s.Update(ctx, ref, row); err != nil {
			return "", err
		}
		return ref, nil
	case errors.Is(err, ErrNotFound):
		return s.Append(ctx, row)
	default:
		return "", err
	}
}

// Loader reads accumulated leads back out of the ledger.
type Loader struct {
	store Store
}

// NewLoader wraps a Store.
func NewLoader(store Store) *Loader {
	return &Loader{store: store}
}

// Load returns the stored lead or leads.ErrLeadNotFound.
func (l *Loader) Load(ctx context.Context, leadID string) (*leads.Lead, error) {
	_, row, err := l.store.Find(ctx, leadID)
	if errors.Is(err, ErrNotFound) {
		return nil, leads.ErrLeadNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Lead(), nil
}
