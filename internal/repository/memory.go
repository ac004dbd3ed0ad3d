package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryStateRepository is the in-process fallback used when redis is
// unreachable. Entries vanish on restart, which is acceptable for
// idempotency keys and rate counters.
type MemoryStateRepository struct {
	keys       sync.Map
	rateLimits sync.Map
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

func (r *MemoryStateRepository) RememberKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	val, loaded := r.keys.LoadOrStore(key, expiresAt)
	if !loaded {
		return true, nil
	}
	if now.After(val.(time.Time)) {
		r.keys.Store(key, expiresAt)
		return true, nil
	}
	return false, nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}

func (r *MemoryStateRepository) Close() error {
	return nil
}
