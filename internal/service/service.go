package service

import (
	"context"
	"errors"
	"fmt"

	"talentbook/internal/database"
	"talentbook/internal/metrics"
)

// ErrUnauthorized means the acting user lacks the capability for the
// requested operation. Distinct from ErrInvalidTransition: the state
// machine may allow the move while this actor may not make it.
var ErrUnauthorized = errors.New("actor not authorized for this operation")

// ErrValidation covers malformed requests rejected before any write.
var ErrValidation = errors.New("validation failed")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// withConflictRetry re-runs fn after an optimistic-lock conflict, up to
// maxRetry attempts. Conflicts mean another writer won the row; the
// retried attempt re-reads state, so a retry either succeeds or fails
// for a real reason.
func withConflictRetry(ctx context.Context, maxRetry int, operation string, fn func() error) error {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	var err error
	for attempt := 1; attempt <= maxRetry; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if !errors.Is(err, database.ErrConcurrentModification) {
			return err
		}
		metrics.IncLockConflict(operation)
	}
	return err
}
