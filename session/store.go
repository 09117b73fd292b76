package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps session records. Save and Delete each act on the whole record.
type Store interface {
	Save(ctx context.Context, id string, identity Identity, ttl time.Duration) error

	// Load returns ErrNoSession when the record is missing or expired.
	Load(ctx context.Context, id string) (Identity, error)

	// Delete removes the record. A missing record is not an error.
	Delete(ctx context.Context, id string) error
}

// =============================================================================
// MEMORY STORE
// =============================================================================

type memoryEntry struct {
	identity  Identity
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are removed
// lazily on Load and periodically by a sweeper goroutine.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore starts a store whose sweeper runs every interval.
// Close stops the sweeper.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go m.sweep(interval)
	return m
}

func (m *MemoryStore) Save(_ context.Context, id string, identity Identity, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{identity: identity, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return Identity{}, ErrNoSession
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return Identity{}, ErrNoSession
	}
	return e.identity, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes expired entries.
func (m *MemoryStore) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}

func (m *MemoryStore) sweep(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stop:
			return
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (m *MemoryStore) Close() error {
	m.once.Do(func() { close(m.stop) })
	<-m.done
	return nil
}

// =============================================================================
// REDIS STORE
// =============================================================================

const redisKeyPrefix = "compras:session:"

// RedisStore keeps sessions in Redis as JSON with a server-side expiry.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redisURL (redis://host:port/db) and pings it.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, identity Identity, ttl time.Duration) error {
	b, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, redisKeyPrefix+id, b, ttl).Err()
}

func (r *RedisStore) Load(ctx context.Context, id string) (Identity, error) {
	b, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load session: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(b, &identity); err != nil {
		return Identity{}, fmt.Errorf("decode session: %w", err)
	}
	return identity, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+id).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
