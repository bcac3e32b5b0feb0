package ledger

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process ledger used for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []Row
}

// NewMemoryStore returns an empty ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Find scans for the lead id, like the spreadsheet backend does.
func (s *MemoryStore) Find(_ context.Context, leadID string) (RowRef, Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, row := range s.rows {
		if row.LeadID == leadID {
			return RowRef(strconv.Itoa(i)), row, nil
		}
	}
	return "", Row{}, ErrNotFound
}

func (s *MemoryStore) Append(_ context.Context, row Row) (RowRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return RowRef(strconv.Itoa(len(s.rows) - 1)), nil
}

func (s *MemoryStore) Update(_ context.Context, ref RowRef, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := strconv.Atoi(string(ref))
	if err != nil || i < 0 || i >= len(s.rows) {
		return ErrNotFound
	}
	s.rows[i] = row
	return nil
}

// Rows returns a copy of every row in insertion order.
func (s *MemoryStore) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Row(nil), s.rows...)
}
