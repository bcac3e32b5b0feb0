package crm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// MemoryStore is a CRM stand-in for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	contacts map[string]Contact
	order    []string
	seq      int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[string]Contact)}
}

func (m *MemoryStore) Create(_ context.Context, c Contact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("contact_%d", m.seq)
	m.contacts[id] = c
	m.order = append(m.order, id)
	return id, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, c Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contacts[id]; !ok {
		return &APIError{StatusCode: http.StatusNotFound, Message: "contact not found"}
	}
	m.contacts[id] = c
	return nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	for _, id := range m.order {
		if strings.EqualFold(m.contacts[id].Email, email) {
			return id, nil
		}
	}
	return "", nil
}

// Get returns a stored contact.
func (m *MemoryStore) Get(id string) (Contact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	return c, ok
}

// Len returns the number of contacts.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}
