package models

import "time"

// BankDetails is the payout destination supplied by the talent.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// WithdrawalRequest asks to convert earned balance into an external
// payout. Funds stay spendable until an admin approves, so the balance
// is re-checked at approval time.
type WithdrawalRequest struct {
	ID          string      `json:"id"`
	TalentID    string      `json:"talent_id"`
	Amount      int64       `json:"amount"`
	Bank        BankDetails `json:"bank"`
	Status      string      `json:"status"`
	AdminNotes  string      `json:"admin_notes"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}
