package database

import (
	"context"
	"database/sql"
	"fmt"

	"talentbook/internal/models"
)

const transactionColumns = `id, user_id, amount, type, status, reference_id, description, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	var referenceID, description sql.NullString
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Status, &referenceID, &description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.ReferenceID = referenceID.String
	t.Description = description.String
	return t, nil
}

func (db *DB) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`
	return scanTransaction(db.QueryRowContext(ctx, query, id))
}

// ListTransactions returns a user's ledger history, newest first,
// narrowed by the optional filter fields.
func (db *DB) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}

	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CheckWalletConsistency verifies the ledger invariant for one wallet:
// the sum of its completed transactions must equal balance plus
// escrow_balance. Pending escrow holds are excluded on both sides,
// which is what makes the equation hold mid-booking.
func (db *DB) CheckWalletConsistency(ctx context.Context, userID string) error {
	w, err := db.GetWallet(ctx, userID)
	if err != nil {
		return err
	}

	var ledgerSum int64
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = ? AND status = ?`
	if err := db.QueryRowContext(ctx, query, userID, models.TxStatusCompleted).Scan(&ledgerSum); err != nil {
		return fmt.Errorf("failed to sum ledger: %w", err)
	}

	// A pending hold moves coins from balance to escrow_balance without
	// changing their sum, so completed entries reconcile against the
	// total at every point in a booking's life.
	if ledgerSum != w.Balance+w.EscrowBalance {
		return fmt.Errorf("wallet %s out of balance: ledger=%d balance=%d escrow=%d", userID, ledgerSum, w.Balance, w.EscrowBalance)
	}
	return nil
}
