package events

import (
	"encoding/json"
	"time"

	"talentbook/internal/models"
)

const (
	EventBookingCreated    = "booking_created"
	EventBookingEscrowed   = "booking_escrowed"
	EventBookingConfirmed  = "booking_confirmed"
	EventBookingCancelled  = "booking_cancelled"
	EventBookingCompleted  = "booking_completed"
	EventBookingExpired    = "booking_expired"
	EventVerificationOpen  = "verification_submitted"
	EventVerificationDone  = "verification_resolved"
	EventWithdrawalOpen    = "withdrawal_requested"
	EventWithdrawalDone    = "withdrawal_resolved"
	EventBalanceChanged    = "balance_changed"
	EventTransactionPosted = "transaction_posted"
)

// BookingPayload is the booking snapshot carried on booking events.
type BookingPayload struct {
	BookingID  string    `json:"booking_id"`
	ClientID   string    `json:"client_id"`
	TalentID   string    `json:"talent_id"`
	TotalPrice int64     `json:"total_price"`
	Status     string    `json:"status"`
	Scheduled  time.Time `json:"scheduled_at"`
	ChangedBy  string    `json:"changed_by,omitempty"`
}

// WalletPayload reports the authoritative balances after a ledger write.
type WalletPayload struct {
	UserID        string `json:"user_id"`
	Balance       int64  `json:"balance"`
	EscrowBalance int64  `json:"escrow_balance"`
}

// WithdrawalPayload is carried on payout pipeline events; bank details
// ride along so the payout sink does not need to re-read the request.
type WithdrawalPayload struct {
	RequestID   string             `json:"request_id"`
	TalentID    string             `json:"talent_id"`
	Amount      int64              `json:"amount"`
	Status      string             `json:"status"`
	Bank        models.BankDetails `json:"bank"`
	AdminNotes  string             `json:"admin_notes,omitempty"`
	ProcessedAt *time.Time         `json:"processed_at,omitempty"`
}

// VerificationPayload is carried on verification events.
type VerificationPayload struct {
	VerificationID string `json:"verification_id"`
	BookingID      string `json:"booking_id"`
	Status         string `json:"status"`
	AdminNotes     string `json:"admin_notes,omitempty"`
}

// New builds an outbox row ready for transactional insert. Marshal
// errors are impossible for the payload structs above, but surfaced
// anyway so callers never enqueue a broken event.
func New(entityType, entityID, eventType, newState string, payload any) (*models.Event, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &models.Event{
		EntityType: entityType,
		EntityID:   entityID,
		EventType:  eventType,
		NewState:   newState,
		Payload:    string(raw),
		Status:     models.EventPending,
		CreatedAt:  time.Now(),
	}, nil
}
