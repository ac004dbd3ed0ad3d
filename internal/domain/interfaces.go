package domain

import (
	"context"
	"time"

	"talentbook/internal/events"
	"talentbook/internal/models"
)

type Repository interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	GetOrCreateWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ApplyLedgerEntry(ctx context.Context, userID string, amount int64, txType, referenceID, description string) (*models.Transaction, error)
	MoveToEscrow(ctx context.Context, userID string, amount int64, referenceID string) error
	ReleaseFromEscrow(ctx context.Context, userID string, amount int64, destination, referenceID string) error
	Transfer(ctx context.Context, fromID, toID string, amount int64, txType, referenceID, description string) error

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error)
	ListStaleBookings(ctx context.Context, status string, cutoff time.Time) ([]*models.Booking, error)
	EscrowBooking(ctx context.Context, bookingID, fullName, documentRef string) error
	CancelBooking(ctx context.Context, bookingID, terminalStatus, changedBy string) error
	CompleteBooking(ctx context.Context, bookingID, changedBy string) error

	GetVerification(ctx context.Context, id string) (*models.Verification, error)
	GetVerificationByBooking(ctx context.Context, bookingID string) (*models.Verification, error)
	ListPendingVerifications(ctx context.Context) ([]*models.Verification, error)
	ApproveVerification(ctx context.Context, id, adminNotes string) error
	RejectVerification(ctx context.Context, id, adminNotes string) error

	CreateWithdrawalRequest(ctx context.Context, req *models.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id string) (*models.WithdrawalRequest, error)
	ListPendingWithdrawals(ctx context.Context) ([]*models.WithdrawalRequest, error)
	ListApprovedWithdrawals(ctx context.Context, since time.Time) ([]*models.WithdrawalRequest, error)
	GetUserWithdrawals(ctx context.Context, talentID string) ([]*models.WithdrawalRequest, error)
	ApproveWithdrawal(ctx context.Context, id, adminNotes string) error
	RejectWithdrawal(ctx context.Context, id, adminNotes string) error

	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error)
	CheckWalletConsistency(ctx context.Context, userID string) error

	GetPendingEvents(ctx context.Context, limit int) ([]*models.Event, error)
	UpdateEventStatus(ctx context.Context, seq int64, status, errMsg string, nextRetryAt *time.Time) error
	ListEventsAfter(ctx context.Context, afterSeq int64, limit int) ([]*models.Event, error)
	CountPendingEvents(ctx context.Context) (int, error)
}

// StateRepository backs the short-lived operational state the API needs
// outside the ledger: idempotency keys and per-caller rate limits. The
// redis implementation fails over to memory, so implementations must
// tolerate losing state.
type StateRepository interface {
	// RememberKey records an idempotency key with a TTL and reports
	// whether it was seen for the first time.
	RememberKey(ctx context.Context, key string, ttl time.Duration) (bool, error)
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Close() error
}

// EventSink is one delivery target for committed outbox events. Sinks
// run strictly after commit; a sink error retries the whole event.
type EventSink interface {
	Name() string
	Deliver(ctx context.Context, event *models.Event) error
}

// EventPublisher pushes committed events to the redis fan-out channel.
type EventPublisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) error
}

// PayoutWriter records an approved payout on the finance side.
type PayoutWriter interface {
	AppendPayout(ctx context.Context, payout events.WithdrawalPayload) error
}

// Notifier forwards an event to the operations channel.
type Notifier interface {
	NotifyEvent(ctx context.Context, event *models.Event) error
}

// BatchWriter turns a set of approved withdrawals into a bank upload
// file and returns the file path.
type BatchWriter interface {
	WriteBatch(payouts []*models.WithdrawalRequest) (string, error)
}
