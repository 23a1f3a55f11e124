package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoredSession is what a client keeps in its persisted session storage.
// Identity details are re-read from the user store on restore.
type StoredSession struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStore persists one session per workspace id.  Load returns
// (nil, nil) when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context, workspaceID string) (*StoredSession, error)
	Save(ctx context.Context, workspaceID string, s StoredSession, ttl time.Duration) error
	Delete(ctx context.Context, workspaceID string) error
}

// RedisSessionStore keeps sessions as JSON strings under prefix:workspaceID.
type RedisSessionStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisSessionStore(rdb *redis.Client, prefix string) *RedisSessionStore {
	if rdb == nil {
		panic("gateway: nil redis client")
	}
	return &RedisSessionStore{rdb: rdb, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string { return s.prefix + ":" + id }

func (s *RedisSessionStore) Load(ctx context.Context, workspaceID string) (*StoredSession, error) {
	raw, err := s.rdb.Get(ctx, s.key(workspaceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var st StoredSession
	if err := json.Unmarshal(raw, &st); err != nil {
		// Corrupt entries are treated as absent and removed.
		_ = s.rdb.Del(ctx, s.key(workspaceID)).Err()
		return nil, nil
	}
	return &st, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, workspaceID string, st StoredSession, ttl time.Duration) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(workspaceID), b, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, workspaceID string) error {
	if err := s.rdb.Del(ctx, s.key(workspaceID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MemorySessionStore is the fallback used when Redis is unavailable.
// Sessions do not survive a restart.
type MemorySessionStore struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	s   StoredSession
	exp time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{data: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemorySessionStore) Load(_ context.Context, workspaceID string) (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[workspaceID]
	if !ok {
		return nil, nil
	}
	if !e.exp.IsZero() && m.now().After(e.exp) {
		delete(m.data, workspaceID)
		return nil, nil
	}
	s := e.s
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, workspaceID string, s StoredSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{s: s}
	if ttl > 0 {
		e.exp = m.now().Add(ttl)
	}
	m.data[workspaceID] = e
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, workspaceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, workspaceID)
	return nil
}
