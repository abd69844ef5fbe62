package resultstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore provides an in-memory implementation of the Store interface.
// It is thread-safe and suitable for development, testing, and
// single-instance deployments. For distributed systems, use RedisStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	result    Result
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL sets the time-to-live for stored results.
// Set to 0 for no expiration.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// NewMemoryStore creates a new in-memory result store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load retrieves a result by request ID. Expired entries are evicted lazily.
func (s *MemoryStore) Load(_ context.Context, requestID string) (*Result, error) {
	if requestID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	entry, exists := s.entries[requestID]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, requestID)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	result := entry.result
	return &result, nil
}

// Save persists a result, refreshing its TTL.
func (s *MemoryStore) Save(_ context.Context, result *Result) error {
	if result == nil {
		return ErrInvalidResult
	}
	if result.RequestID == "" {
		return ErrInvalidID
	}

	stored := *result
	stored.UpdatedAt = time.Now()

	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = time.Now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[result.RequestID] = memoryEntry{result: stored, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes a result by request ID.
func (s *MemoryStore) Delete(_ context.Context, requestID string) error {
	if requestID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[requestID]; !exists {
		return ErrNotFound
	}
	delete(s.entries, requestID)
	return nil
}
