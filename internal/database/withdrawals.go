package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"talentbook/internal/events"
	"talentbook/internal/models"

	"github.com/google/uuid"
)

// A withdrawal request does not hold funds. The balance is checked when
// the request is made and checked again at approval time, and only the
// approval writes the payout debit. Spending between the two checks
// makes the approval fail with ErrInsufficientFunds while the request
// stays pending.

func (db *DB) CreateWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	w, err := getOrCreateWalletTx(tx, req.TalentID)
	if err != nil {
		return err
	}
	if w.Balance < req.Amount {
		return ErrInsufficientFunds
	}

	query := `INSERT INTO withdrawal_requests (
				id, talent_id, amount, bank_name, account_number, account_name,
				status, admin_notes, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err = tx.Exec(query,
		req.ID, req.TalentID, req.Amount,
		req.Bank.BankName, req.Bank.AccountNumber, req.Bank.AccountName,
		models.ResolutionPending, req.AdminNotes, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal request: %w", err)
	}
	req.Status = models.ResolutionPending
	req.CreatedAt = now

	if err := insertWithdrawalEventTx(tx, req, events.EventWithdrawalOpen); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withdrawal request: %w", err)
	}
	return nil
}

const withdrawalColumns = `id, talent_id, amount, bank_name, account_number, account_name,
                           status, admin_notes, created_at, processed_at`

func scanWithdrawal(row interface{ Scan(...any) error }) (*models.WithdrawalRequest, error) {
	req := &models.WithdrawalRequest{}
	var adminNotes sql.NullString
	var processedAt sql.NullTime
	err := row.Scan(
		&req.ID, &req.TalentID, &req.Amount,
		&req.Bank.BankName, &req.Bank.AccountNumber, &req.Bank.AccountName,
		&req.Status, &adminNotes, &req.CreatedAt, &processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan withdrawal request: %w", err)
	}
	req.AdminNotes = adminNotes.String
	if processedAt.Valid {
		req.ProcessedAt = &processedAt.Time
	}
	return req, nil
}

func (db *DB) GetWithdrawalRequest(ctx context.Context, id string) (*models.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests WHERE id = ?`
	return scanWithdrawal(db.QueryRowContext(ctx, query, id))
}

// ListPendingWithdrawals returns the admin payout queue, oldest first.
func (db *DB) ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
              WHERE status = ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, models.ResolutionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*models.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListApprovedWithdrawals returns payouts approved since the cutoff,
// oldest first. The finance export batches these for the bank upload.
func (db *DB) ListApprovedWithdrawals(ctx context.Context, since time.Time) ([]*models.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
              WHERE status = ? AND processed_at >= ? ORDER BY processed_at ASC`
	rows, err := db.QueryContext(ctx, query, models.ResolutionApproved, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list approved withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*models.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (db *DB) GetUserWithdrawals(ctx context.Context, talentID string) ([]*models.WithdrawalRequest, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawal_requests
              WHERE talent_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, talentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []*models.WithdrawalRequest
	for rows.Next() {
		req, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func resolveWithdrawalTx(tx *sql.Tx, id, status, adminNotes string) (time.Time, error) {
	now := time.Now()
	query := `UPDATE withdrawal_requests SET status = ?, admin_notes = ?, processed_at = ?
              WHERE id = ? AND status = ?`
	result, err := tx.Exec(query, status, adminNotes, now, id, models.ResolutionPending)
	if err != nil {
		return now, fmt.Errorf("failed to resolve withdrawal request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return now, ErrAlreadyResolved
	}
	return now, nil
}

func insertWithdrawalEventTx(tx *sql.Tx, req *models.WithdrawalRequest, eventType string) error {
	event, err := events.New(models.EntityWithdrawal, req.ID, eventType, req.Status, events.WithdrawalPayload{
		RequestID:   req.ID,
		TalentID:    req.TalentID,
		Amount:      req.Amount,
		Status:      req.Status,
		Bank:        req.Bank,
		AdminNotes:  req.AdminNotes,
		ProcessedAt: req.ProcessedAt,
	})
	if err != nil {
		return err
	}
	return insertEventTx(tx, event)
}

// ApproveWithdrawal re-checks the talent's spendable balance and, if it
// still covers the ask, debits it with a completed payout transaction
// and marks the request approved. The actual bank transfer happens
// downstream off the withdrawal_resolved event.
func (db *DB) ApproveWithdrawal(ctx context.Context, id, adminNotes string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := scanWithdrawal(tx.QueryRow(`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if req.Status != models.ResolutionPending {
		return ErrAlreadyResolved
	}

	w, err := getWalletTx(tx, req.TalentID)
	if err != nil {
		return err
	}
	if w.Balance < req.Amount {
		return ErrInsufficientFunds
	}

	w.Balance -= req.Amount
	if err := updateWalletTx(tx, w); err != nil {
		return err
	}

	payout := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      req.TalentID,
		Amount:      -req.Amount,
		Type:        models.TxPayout,
		Status:      models.TxStatusCompleted,
		ReferenceID: req.ID,
		Description: fmt.Sprintf("Withdrawal payout #%s", shortID(req.ID)),
		CreatedAt:   time.Now(),
	}
	if err := insertTransactionTx(tx, payout); err != nil {
		return err
	}

	processedAt, err := resolveWithdrawalTx(tx, id, models.ResolutionApproved, adminNotes)
	if err != nil {
		return err
	}
	req.Status = models.ResolutionApproved
	req.AdminNotes = adminNotes
	req.ProcessedAt = &processedAt

	if err := insertBalanceEventTx(tx, w); err != nil {
		return err
	}
	if err := insertWithdrawalEventTx(tx, req, events.EventWithdrawalDone); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withdrawal approval: %w", err)
	}
	return nil
}

// RejectWithdrawal closes a pending request without touching the
// wallet; nothing was held, so there is nothing to return.
func (db *DB) RejectWithdrawal(ctx context.Context, id, adminNotes string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	req, err := scanWithdrawal(tx.QueryRow(`SELECT `+withdrawalColumns+` FROM withdrawal_requests WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if req.Status != models.ResolutionPending {
		return ErrAlreadyResolved
	}

	processedAt, err := resolveWithdrawalTx(tx, id, models.ResolutionRejected, adminNotes)
	if err != nil {
		return err
	}
	req.Status = models.ResolutionRejected
	req.AdminNotes = adminNotes
	req.ProcessedAt = &processedAt

	if err := insertWithdrawalEventTx(tx, req, events.EventWithdrawalDone); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withdrawal rejection: %w", err)
	}
	return nil
}
