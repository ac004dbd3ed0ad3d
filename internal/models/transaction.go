package models

import "time"

// Transaction is an append-only ledger entry. Amount is signed:
// positive credits the wallet, negative debits it. Rows are never
// updated after insert.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TransactionFilter narrows ListTransactions results.
type TransactionFilter struct {
	Type   string
	Since  time.Time
	Limit  int
	Offset int
}
