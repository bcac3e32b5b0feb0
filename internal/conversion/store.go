package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type memEntry struct {
	state   State
	expires time.Time
}

// MemoryStore keeps session state in process memory. Session ids come from
// clients, so expired sessions are dropped when read and swept at most once
// per TTL on write.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[string]memEntry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryStore{sessions: make(map[string]memEntry), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) current(sessionID string, now time.Time) State {
	e, ok := m.sessions[sessionID]
	if !ok {
		return StateNotFired
	}
	if now.After(e.expires) {
		delete(m.sessions, sessionID)
		return StateNotFired
	}
	return e.state
}

func (m *MemoryStore) put(sessionID string, state State, now time.Time) {
	if !now.Before(m.nextSweep) {
		m.sweepLocked(now)
		m.nextSweep = now.Add(m.ttl)
	}
	m.sessions[sessionID] = memEntry{state: state, expires: now.Add(m.ttl)}
}

// Sweep drops expired sessions and returns how many were removed.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(now)
}

func (m *MemoryStore) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range m.sessions {
		if now.After(e.expires) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) FirePartial(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.current(sessionID, now) != StateNotFired {
		return false, nil
	}
	m.put(sessionID, StatePartialFired, now)
	return true, nil
}

func (m *MemoryStore) FireFull(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.current(sessionID, now) == StateFullFired {
		return false, nil
	}
	m.put(sessionID, StateFullFired, now)
	return true, nil
}

func (m *MemoryStore) State(_ context.Context, sessionID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current(sessionID, m.now()), nil
}

// RedisStore shares session state between API instances. Keys expire with
// the session.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: "conversion:", ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string { return s.prefix + sessionID }

func (s *RedisStore) FirePartial(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(sessionID), string(StatePartialFired), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// FireFull swaps the state to full with SET ... GET so exactly one caller sees
// a previous value other than full.
func (s *RedisStore) FireFull(ctx context.Context, sessionID string) (bool, error) {
	prev, err := s.client.SetArgs(ctx, s.key(sessionID), string(StateFullFired), redis.SetArgs{
		TTL: s.ttl,
		Get: true,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis set get: %w", err)
	}
	return State(prev) != StateFullFired, nil
}

func (s *RedisStore) State(ctx context.Context, sessionID string) (State, error) {
	v, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return StateNotFired, nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return State(v), nil
}
