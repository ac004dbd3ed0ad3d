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

// The ledger convention: every wallet mutation happens inside one
// database transaction together with the Transaction row that records
// it and the outbox event that announces it. An escrow hold is written
// as a pending debit; it completes when the booking resolves, so the
// sum of completed transactions always reconciles to balance plus
// escrow_balance.

func (db *DB) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	query := `SELECT user_id, balance, escrow_balance, version, created_at, updated_at
              FROM wallets WHERE user_id = ?`
	var w models.Wallet
	err := db.QueryRowContext(ctx, query, userID).Scan(
		&w.UserID, &w.Balance, &w.EscrowBalance, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func (db *DB) GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	w, err := db.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	query := `INSERT INTO wallets (user_id, balance, escrow_balance, version, created_at, updated_at)
              VALUES (?, 0, 0, 1, ?, ?)
              ON CONFLICT(user_id) DO NOTHING`
	now := time.Now()
	if _, err := db.ExecContext(ctx, query, userID, now, now); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return db.GetWallet(ctx, userID)
}

// ApplyLedgerEntry atomically mutates a wallet's spendable balance and
// records the completed Transaction for it. A negative amount requires
// sufficient balance; the wallet row is compared on version so a
// concurrent writer surfaces as ErrConcurrentModification.
func (db *DB) ApplyLedgerEntry(ctx context.Context, userID string, amount int64, txType, referenceID, description string) (*models.Transaction, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	w, err := getOrCreateWalletTx(tx, userID)
	if err != nil {
		return nil, err
	}

	if amount < 0 && w.Balance < -amount {
		return nil, ErrInsufficientFunds
	}

	w.Balance += amount
	if err := updateWalletTx(tx, w); err != nil {
		return nil, err
	}

	entry := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Status:      models.TxStatusCompleted,
		ReferenceID: referenceID,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := insertTransactionTx(tx, entry); err != nil {
		return nil, err
	}

	if err := insertBalanceEventTx(tx, w); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return entry, nil
}

// MoveToEscrow debits the spendable balance and credits the escrow
// balance in one unit of work, writing the hold as a pending debit.
func (db *DB) MoveToEscrow(ctx context.Context, userID string, amount int64, referenceID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := moveToEscrowTx(tx, userID, amount, referenceID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit escrow hold: %w", err)
	}
	return nil
}

// ReleaseFromEscrow resolves an escrow hold. When destination equals
// the holding user the amount returns to their spendable balance
// (refund); otherwise the hold converts into the destination user's
// earnings (payout-to-talent).
func (db *DB) ReleaseFromEscrow(ctx context.Context, userID string, amount int64, destination, referenceID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if destination == userID {
		err = releaseEscrowRefundTx(tx, userID, amount, referenceID)
	} else {
		err = releaseEscrowToTalentTx(tx, userID, destination, amount, referenceID)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit escrow release: %w", err)
	}
	return nil
}

// Transfer atomically moves coins between two wallets, recording a
// completed debit for the sender and credit for the recipient. Used by
// gifts and premium unlocks.
func (db *DB) Transfer(ctx context.Context, fromID, toID string, amount int64, txType, referenceID, description string) error {
	if fromID == toID {
		return ErrInvalidTransition
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	from, err := getOrCreateWalletTx(tx, fromID)
	if err != nil {
		return err
	}
	if from.Balance < amount {
		return ErrInsufficientFunds
	}

	to, err := getOrCreateWalletTx(tx, toID)
	if err != nil {
		return err
	}

	from.Balance -= amount
	if err := updateWalletTx(tx, from); err != nil {
		return err
	}
	to.Balance += amount
	if err := updateWalletTx(tx, to); err != nil {
		return err
	}

	now := time.Now()
	debit := &models.Transaction{
		ID: uuid.NewString(), UserID: fromID, Amount: -amount, Type: txType,
		Status: models.TxStatusCompleted, ReferenceID: referenceID,
		Description: description, CreatedAt: now,
	}
	credit := &models.Transaction{
		ID: uuid.NewString(), UserID: toID, Amount: amount, Type: txType,
		Status: models.TxStatusCompleted, ReferenceID: referenceID,
		Description: description, CreatedAt: now,
	}
	if err := insertTransactionTx(tx, debit); err != nil {
		return err
	}
	if err := insertTransactionTx(tx, credit); err != nil {
		return err
	}

	if err := insertBalanceEventTx(tx, from); err != nil {
		return err
	}
	if err := insertBalanceEventTx(tx, to); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

// --- transaction-scoped helpers shared with the booking and
// --- withdrawal operations

func getWalletTx(tx *sql.Tx, userID string) (*models.Wallet, error) {
	query := `SELECT user_id, balance, escrow_balance, version, created_at, updated_at
              FROM wallets WHERE user_id = ?`
	var w models.Wallet
	err := tx.QueryRow(query, userID).Scan(
		&w.UserID, &w.Balance, &w.EscrowBalance, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &w, nil
}

func getOrCreateWalletTx(tx *sql.Tx, userID string) (*models.Wallet, error) {
	w, err := getWalletTx(tx, userID)
	if err == nil {
		return w, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now()
	query := `INSERT INTO wallets (user_id, balance, escrow_balance, version, created_at, updated_at)
              VALUES (?, 0, 0, 1, ?, ?)`
	if _, err := tx.Exec(query, userID, now, now); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return &models.Wallet{UserID: userID, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
}

// updateWalletTx writes new balances with an optimistic version check.
// Zero rows affected means another writer got there first.
func updateWalletTx(tx *sql.Tx, w *models.Wallet) error {
	query := `UPDATE wallets SET balance = ?, escrow_balance = ?, version = version + 1, updated_at = ?
              WHERE user_id = ? AND version = ?`
	result, err := tx.Exec(query, w.Balance, w.EscrowBalance, time.Now(), w.UserID, w.Version)
	if err != nil {
		return fmt.Errorf("failed to update wallet: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	w.Version++
	return nil
}

func insertTransactionTx(tx *sql.Tx, t *models.Transaction) error {
	query := `INSERT INTO transactions (id, user_id, amount, type, status, reference_id, description, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.Exec(query, t.ID, t.UserID, t.Amount, t.Type, t.Status, t.ReferenceID, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func insertBalanceEventTx(tx *sql.Tx, w *models.Wallet) error {
	event, err := events.New(models.EntityWallet, w.UserID, events.EventBalanceChanged, "updated", events.WalletPayload{
		UserID:        w.UserID,
		Balance:       w.Balance,
		EscrowBalance: w.EscrowBalance,
	})
	if err != nil {
		return err
	}
	return insertEventTx(tx, event)
}

func moveToEscrowTx(tx *sql.Tx, userID string, amount int64, referenceID string) error {
	w, err := getWalletTx(tx, userID)
	if err != nil {
		return err
	}
	if w.Balance < amount {
		return ErrInsufficientFunds
	}

	w.Balance -= amount
	w.EscrowBalance += amount
	if err := updateWalletTx(tx, w); err != nil {
		return err
	}

	hold := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -amount,
		Type:        models.TxBooking,
		Status:      models.TxStatusPending,
		ReferenceID: referenceID,
		Description: fmt.Sprintf("Escrow hold for booking #%s", shortID(referenceID)),
		CreatedAt:   time.Now(),
	}
	if err := insertTransactionTx(tx, hold); err != nil {
		return err
	}

	return insertBalanceEventTx(tx, w)
}

func releaseEscrowRefundTx(tx *sql.Tx, userID string, amount int64, referenceID string) error {
	w, err := getWalletTx(tx, userID)
	if err != nil {
		return err
	}
	if w.EscrowBalance < amount {
		return ErrInsufficientFunds
	}

	w.EscrowBalance -= amount
	w.Balance += amount
	if err := updateWalletTx(tx, w); err != nil {
		return err
	}

	if err := completeHoldTx(tx, userID, referenceID); err != nil {
		return err
	}

	refund := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.TxRefund,
		Status:      models.TxStatusCompleted,
		ReferenceID: referenceID,
		Description: fmt.Sprintf("Refund for booking #%s", shortID(referenceID)),
		CreatedAt:   time.Now(),
	}
	if err := insertTransactionTx(tx, refund); err != nil {
		return err
	}

	return insertBalanceEventTx(tx, w)
}

func releaseEscrowToTalentTx(tx *sql.Tx, clientID, talentID string, amount int64, referenceID string) error {
	client, err := getWalletTx(tx, clientID)
	if err != nil {
		return err
	}
	if client.EscrowBalance < amount {
		return ErrInsufficientFunds
	}

	talent, err := getOrCreateWalletTx(tx, talentID)
	if err != nil {
		return err
	}

	client.EscrowBalance -= amount
	if err := updateWalletTx(tx, client); err != nil {
		return err
	}
	talent.Balance += amount
	if err := updateWalletTx(tx, talent); err != nil {
		return err
	}

	if err := completeHoldTx(tx, clientID, referenceID); err != nil {
		return err
	}

	earning := &models.Transaction{
		ID:          uuid.NewString(),
		UserID:      talentID,
		Amount:      amount,
		Type:        models.TxBooking,
		Status:      models.TxStatusCompleted,
		ReferenceID: referenceID,
		Description: fmt.Sprintf("Earnings from completed booking #%s", shortID(referenceID)),
		CreatedAt:   time.Now(),
	}
	if err := insertTransactionTx(tx, earning); err != nil {
		return err
	}

	if err := insertBalanceEventTx(tx, client); err != nil {
		return err
	}
	return insertBalanceEventTx(tx, talent)
}

// completeHoldTx finalizes the pending escrow debit written by
// moveToEscrowTx once the booking resolves either way.
func completeHoldTx(tx *sql.Tx, userID, referenceID string) error {
	query := `UPDATE transactions SET status = ?
              WHERE user_id = ? AND reference_id = ? AND type = ? AND status = ?`
	_, err := tx.Exec(query, models.TxStatusCompleted, userID, referenceID, models.TxBooking, models.TxStatusPending)
	if err != nil {
		return fmt.Errorf("failed to complete escrow hold: %w", err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
