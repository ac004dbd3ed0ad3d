package models

// Booking lifecycle. Transitions only move forward; cancelled and
// expired are reachable from the three non-terminal states.
const (
	BookingPaymentPending      = "payment_pending"
	BookingVerificationPending = "verification_pending"
	BookingConfirmed           = "confirmed"
	BookingCompleted           = "completed"
	BookingCancelled           = "cancelled"
	BookingExpired             = "expired"
)

// Booking actions accepted by AdvanceBooking.
const (
	ActionPay      = "pay"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
	ActionExpire   = "expire"
)

// Resolution states shared by verifications and withdrawal requests.
const (
	ResolutionPending  = "pending"
	ResolutionApproved = "approved"
	ResolutionRejected = "rejected"
)

// Transaction types.
const (
	TxPurchase      = "purchase"
	TxBooking       = "booking"
	TxGift          = "gift"
	TxPremiumUnlock = "premium_unlock"
	TxPayout        = "payout"
	TxRefund        = "refund"
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// Actor roles.
const (
	RoleClient = "client"
	RoleTalent = "talent"
	RoleAdmin  = "admin"
)

// Outbox event processing states.
const (
	EventPending   = "pending"
	EventRetry     = "retry"
	EventProcessed = "processed"
	EventFailed    = "failed"
)

// Entity types carried on feed events.
const (
	EntityBooking      = "booking"
	EntityWallet       = "wallet"
	EntityVerification = "verification"
	EntityWithdrawal   = "withdrawal_request"
	EntityTransaction  = "transaction"
)

const (
	// DefaultWithdrawalMin is the minimum payout ask in coins when the
	// config does not override it.
	DefaultWithdrawalMin = 1000

	// DefaultCoinRateNGN is the naira value of one coin used on payout
	// instructions.
	DefaultCoinRateNGN = 10

	// DefaultConflictRetries bounds internal retries after an
	// optimistic-lock conflict before the error is surfaced.
	DefaultConflictRetries = 3

	// DefaultPaymentPendingTTL and DefaultVerificationTTL are the ages
	// after which the sweep expires stale bookings, in seconds.
	DefaultPaymentPendingTTL = 60 * 60
	DefaultVerificationTTL   = 24 * 60 * 60

	// DefaultOutboxBatch is how many pending events one worker poll
	// picks up.
	DefaultOutboxBatch = 20
)
