package data

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryCacheRepo is an in-process core.CacheRepository with real expiration
// semantics. It backs tests and single-node development mode; production
// deployments use RedisCacheRepo.
type MemoryCacheRepo struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	// now is swappable so tests can control expiry without sleeping.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

// NewMemoryCacheRepo creates an empty in-memory cache.
func NewMemoryCacheRepo() *MemoryCacheRepo {
	return &MemoryCacheRepo{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCacheRepo) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

// Set stores a value with the given TTL. A TTL of 0 means no expiration.
func (m *MemoryCacheRepo) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

// Get retrieves a value by key; expired and missing keys return nil.
func (m *MemoryCacheRepo) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.expired(entry) {
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

// Delete removes a key, reporting whether a live entry was dropped.
func (m *MemoryCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	delete(m.entries, key)
	return !m.expired(entry), nil
}

// Exists checks whether a live entry is present for the key.
func (m *MemoryCacheRepo) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key]
	return ok && !m.expired(entry), nil
}

// SetIfNotExists sets the key only when no live entry exists. The check and
// write happen under one lock, mirroring Redis SET NX atomicity.
func (m *MemoryCacheRepo) SetIfNotExists(
	_ context.Context,
	key string,
	value []byte,
	ttl time.Duration,
) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok && !m.expired(entry) {
		return false, nil
	}
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
	return true, nil
}

// DeleteIfEquals removes the key only while it still holds the given value.
// The compare and the delete run under one lock, mirroring the Redis
// unlock script.
func (m *MemoryCacheRepo) DeleteIfEquals(_ context.Context, key string, value []byte) (bool, error) {
	if key == "" {
		return false, errors.New("key cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok || m.expired(entry) || !bytes.Equal(entry.value, value) {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// Health always succeeds for the in-memory cache.
func (m *MemoryCacheRepo) Health(_ context.Context) error {
	return nil
}
