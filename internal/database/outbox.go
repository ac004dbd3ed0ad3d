package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"talentbook/internal/models"
)

// The events table is a transactional outbox: rows are inserted inside
// the same transaction as the state change they announce and later
// picked up by the delivery worker, so consumers never observe an
// event for a rolled-back write.

func insertEventTx(tx *sql.Tx, e *models.Event) error {
	query := `INSERT INTO events (entity_type, entity_id, event_type, new_state, payload, status, retry_count, created_at)
              VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	result, err := tx.Exec(query, e.EntityType, e.EntityID, e.EventType, e.NewState, e.Payload, e.Status, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event seq: %w", err)
	}
	e.Seq = seq
	return nil
}

const eventColumns = `seq, entity_type, entity_id, event_type, new_state, payload,
                      status, retry_count, last_error, created_at, next_retry_at, processed_at`

func scanEvent(rows *sql.Rows) (*models.Event, error) {
	e := &models.Event{}
	var lastError, newState, payload sql.NullString
	var nextRetryAt, processedAt sql.NullTime
	err := rows.Scan(
		&e.Seq, &e.EntityType, &e.EntityID, &e.EventType, &newState, &payload,
		&e.Status, &e.RetryCount, &lastError, &e.CreatedAt, &nextRetryAt, &processedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.NewState = newState.String
	e.Payload = payload.String
	e.LastError = lastError.String
	if nextRetryAt.Valid {
		e.NextRetryAt = &nextRetryAt.Time
	}
	if processedAt.Valid {
		e.ProcessedAt = &processedAt.Time
	}
	return e, nil
}

// GetPendingEvents returns undelivered events that are due, oldest
// first, for the delivery worker.
func (db *DB) GetPendingEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY seq ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateEventStatus records a delivery attempt outcome.
func (db *DB) UpdateEventStatus(ctx context.Context, seq int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	switch status {
	case models.EventRetry:
		query = `UPDATE events SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE seq = ?`
		args = []any{status, errMsg, nextRetryAt, seq}
	case models.EventProcessed, models.EventFailed:
		query = `UPDATE events SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE seq = ?`
		args = []any{status, errMsg, now, seq}
	default:
		query = `UPDATE events SET status = ?, last_error = ? WHERE seq = ?`
		args = []any{status, errMsg, seq}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}
	return nil
}

// ListEventsAfter tails the feed from a cursor, regardless of delivery
// state. This backs the GET /events endpoint for polling consumers.
func (db *DB) ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = models.DefaultOutboxBatch
	}
	query := `SELECT ` + eventColumns + ` FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountPendingEvents reports outbox lag for monitoring.
func (db *DB) CountPendingEvents(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE status IN ('pending', 'retry')`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}
