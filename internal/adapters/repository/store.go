package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/cadence/internal/config"
)

// Store is the checkpoint persistence boundary. Blobs are opaque.
type Store interface {
	// Load returns the blob stored under key, or nil when absent.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save stores blob under key, replacing any previous value.
	Save(ctx context.Context, key string, blob []byte) error
	// Close releases backend resources.
	Close() error
}

// Open builds the store selected by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, opts...)
	case config.StoreRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
	case config.StorePostgres:
		return NewPostgresStore(ctx, cfg.PostgresDSN, opts...)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreDriver)
}

// MemoryStore keeps checkpoints in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %w", ErrLoad, ErrClosed)
	}
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: %w", ErrSave, ErrClosed)
	}
	s.data[key] = append([]byte(nil), blob...)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
