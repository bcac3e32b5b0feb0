package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Storage persists the draft so a restart does not lose progress.
type Storage interface {
	Load(ctx context.Context) (*Draft, error)
	Save(ctx context.Context, d *Draft) error
	Clear(ctx context.Context) error
}

// FileStorage keeps the draft in a JSON file. Writes go through a temp file
// and a rename so a crash never leaves a torn draft.
type FileStorage struct {
	path string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Load returns nil when no draft exists.
func (s *FileStorage) Load(_ context.Context) (*Draft, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("funnel: read draft: %w", err)
	}
	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("funnel: decode draft: %w", err)
	}
	return &d, nil
}

func (s *FileStorage) Save(_ context.Context, d *Draft) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("funnel: encode draft: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("funnel: create draft dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".draft-*.json")
	if err != nil {
		return fmt.Errorf("funnel: create temp draft: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("funnel: write draft: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("funnel: sync draft: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("funnel: close draft: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("funnel: replace draft: %w", err)
	}
	return nil
}

func (s *FileStorage) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("funnel: remove draft: %w", err)
	}
	return nil
}

// MemoryStorage keeps the draft in process.
type MemoryStorage struct {
	mu    sync.Mutex
	draft *Draft
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Load(context.Context) (*Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.draft == nil {
		return nil, nil
	}
	d := *m.draft
	return &d, nil
}

func (m *MemoryStorage) Save(_ context.Context, d *Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *d
	m.draft = &c
	return nil
}

func (m *MemoryStorage) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draft = nil
	return nil
}
