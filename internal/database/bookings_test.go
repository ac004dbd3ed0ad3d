package database

import (
	"context"
	"testing"
	"time"

	"talentbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestBooking(t *testing.T, db *DB, clientID, talentID string, price int64) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ClientID:   clientID,
		TalentID:   talentID,
		TotalPrice: price,
		Services: []models.ServiceLine{
			{Name: "Photoshoot", Price: price},
		},
		ScheduledAt: time.Now().Add(48 * time.Hour),
		Notes:       "studio session",
	}
	require.NoError(t, db.CreateBooking(context.Background(), booking))
	return booking
}

func TestBookingHappyPath(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 500)

	booking := createTestBooking(t, db, "client", "talent", 300)
	assert.Equal(t, models.BookingPaymentPending, booking.Status)

	// pay: coins move into escrow and the review gate opens
	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingVerificationPending, got.Status)

	clientWallet, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(200), clientWallet.Balance)
	assert.Equal(t, int64(300), clientWallet.EscrowBalance)

	verification, err := db.GetVerificationByBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionPending, verification.Status)
	assert.Equal(t, "Jane Doe", verification.FullName)

	// approve: booking confirms, escrow stays held
	require.NoError(t, db.ApproveVerification(ctx, verification.ID, "looks good"))

	got, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, got.Status)

	clientWallet, err = db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(300), clientWallet.EscrowBalance)

	// complete: escrow converts into talent earnings
	require.NoError(t, db.CompleteBooking(ctx, booking.ID, "talent"))

	got, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, got.Status)

	clientWallet, err = db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(200), clientWallet.Balance)
	assert.Equal(t, int64(0), clientWallet.EscrowBalance)

	talentWallet, err := db.GetWallet(ctx, "talent")
	require.NoError(t, err)
	assert.Equal(t, int64(300), talentWallet.Balance)

	// coins are conserved across the whole lifecycle
	assert.Equal(t, int64(500), clientWallet.Total()+talentWallet.Total())
	require.NoError(t, db.CheckWalletConsistency(ctx, "client"))
	require.NoError(t, db.CheckWalletConsistency(ctx, "talent"))

	// the escrow hold finished as a completed debit
	holds, err := db.ListTransactions(ctx, "client", models.TransactionFilter{Type: models.TxBooking})
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, models.TxStatusCompleted, holds[0].Status)
}

func TestEscrowInsufficientFunds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 100)

	booking := createTestBooking(t, db, "client", "talent", 300)

	err := db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPaymentPending, got.Status)

	// no verification row survives the rollback
	_, err = db.GetVerificationByBooking(ctx, booking.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEscrowOnlyFromPaymentPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 1000)

	booking := createTestBooking(t, db, "client", "talent", 300)
	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))

	err := db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// no double hold
	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.EscrowBalance)
}

func TestCancelBeforePayment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := createTestBooking(t, db, "client", "talent", 300)
	require.NoError(t, db.CancelBooking(ctx, booking.ID, models.BookingCancelled, "client"))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, got.Status)

	// nothing was held, so nothing was refunded
	txs, err := db.ListTransactions(ctx, "client", models.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCancelAfterEscrowRefundsInFull(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 500)

	booking := createTestBooking(t, db, "client", "talent", 300)
	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))

	require.NoError(t, db.CancelBooking(ctx, booking.ID, models.BookingCancelled, "talent"))

	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	assert.Equal(t, int64(0), w.EscrowBalance)
	require.NoError(t, db.CheckWalletConsistency(ctx, "client"))

	refunds, err := db.ListTransactions(ctx, "client", models.TransactionFilter{Type: models.TxRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(300), refunds[0].Amount)

	// the unreviewed verification was closed alongside the booking
	verification, err := db.GetVerificationByBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionRejected, verification.Status)
	assert.Equal(t, "Booking was cancelled before review", verification.AdminNotes)
}

func TestCancelTerminalBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := createTestBooking(t, db, "client", "talent", 300)
	require.NoError(t, db.CancelBooking(ctx, booking.ID, models.BookingCancelled, "client"))

	err := db.CancelBooking(ctx, booking.ID, models.BookingCancelled, "client")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelRequiresTerminalStatus(t *testing.T) {
	db := newTestDB(t)
	booking := createTestBooking(t, db, "client", "talent", 300)

	err := db.CancelBooking(context.Background(), booking.ID, models.BookingConfirmed, "client")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 500)

	booking := createTestBooking(t, db, "client", "talent", 300)

	err := db.CompleteBooking(ctx, booking.ID, "talent")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))
	err = db.CompleteBooking(ctx, booking.ID, "talent")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestExpireConfirmedBookingRefunds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	fund(t, db, "client", 500)

	booking := createTestBooking(t, db, "client", "talent", 300)
	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))

	verification, err := db.GetVerificationByBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.NoError(t, db.ApproveVerification(ctx, verification.ID, ""))

	require.NoError(t, db.CancelBooking(ctx, booking.ID, models.BookingExpired, models.System.ID))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingExpired, got.Status)

	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	require.NoError(t, db.CheckWalletConsistency(ctx, "client"))
}

func TestListStaleBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking := createTestBooking(t, db, "client", "talent", 300)

	stale, err := db.ListStaleBookings(ctx, models.BookingPaymentPending, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, booking.ID, stale[0].ID)

	stale, err = db.ListStaleBookings(ctx, models.BookingPaymentPending, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = db.ListStaleBookings(ctx, models.BookingConfirmed, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestGetUserBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestBooking(t, db, "client", "talent", 100)
	createTestBooking(t, db, "client", "other-talent", 200)
	createTestBooking(t, db, "other-client", "talent", 300)

	asClient, err := db.GetUserBookings(ctx, "client")
	require.NoError(t, err)
	assert.Len(t, asClient, 2)

	asTalent, err := db.GetUserBookings(ctx, "talent")
	require.NoError(t, err)
	assert.Len(t, asTalent, 2)

	none, err := db.GetUserBookings(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}
