package repository

import (
	"context"
	"sync/atomic"
	"time"

	"talentbook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from the primary (redis) until it
// errors, then from the in-memory fallback, probing the primary again
// after a minute. Idempotency guarantees weaken during the failover
// window; ledger correctness never depends on this repository.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) RememberKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() {
		fresh, err := r.primary.RememberKey(ctx, key, ttl)
		if err == nil {
			return fresh, nil
		}
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		fresh, err := r.primary.RememberKey(ctx, key, ttl)
		if err == nil {
			r.isDown.Store(false)
			return fresh, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.RememberKey(ctx, key, ttl)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}

func (r *FailoverStateRepository) Close() error {
	if err := r.primary.Close(); err != nil {
		return err
	}
	return r.fallback.Close()
}
