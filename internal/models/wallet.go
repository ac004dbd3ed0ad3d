package models

import "time"

// Wallet holds a user's spendable and escrowed coin balances.
// Balance and EscrowBalance are never mutated directly; every change
// goes through the ledger so the transaction log reconciles exactly.
type Wallet struct {
	UserID        string    `json:"user_id"`
	Balance       int64     `json:"balance"`
	EscrowBalance int64     `json:"escrow_balance"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Total returns spendable plus escrowed coins.
func (w *Wallet) Total() int64 {
	return w.Balance + w.EscrowBalance
}
