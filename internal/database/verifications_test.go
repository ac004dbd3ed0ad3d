package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"talentbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func escrowedBooking(t *testing.T, db *DB, price int64) (*models.Booking, *models.Verification) {
	t.Helper()
	ctx := context.Background()
	fund(t, db, "client", price+200)
	booking := createTestBooking(t, db, "client", "talent", price)
	require.NoError(t, db.EscrowBooking(ctx, booking.ID, "Jane Doe", "NIN-12345678"))
	verification, err := db.GetVerificationByBooking(ctx, booking.ID)
	require.NoError(t, err)
	return booking, verification
}

func TestListPendingVerifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, verification := escrowedBooking(t, db, 300)

	pending, err := db.ListPendingVerifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, verification.ID, pending[0].ID)

	require.NoError(t, db.ApproveVerification(ctx, verification.ID, ""))

	pending, err = db.ListPendingVerifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApproveVerification(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking, verification := escrowedBooking(t, db, 300)
	require.NoError(t, db.ApproveVerification(ctx, verification.ID, "documents check out"))

	got, err := db.GetVerification(ctx, verification.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApproved, got.Status)
	assert.Equal(t, "documents check out", got.AdminNotes)
	require.NotNil(t, got.ResolvedAt)

	b, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	// escrow untouched by approval
	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.EscrowBalance)
}

func TestRejectVerificationRefundsAndCancels(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking, verification := escrowedBooking(t, db, 300)
	require.NoError(t, db.RejectVerification(ctx, verification.ID, "document does not match the name"))

	got, err := db.GetVerification(ctx, verification.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionRejected, got.Status)

	b, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, b.Status)

	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)
	assert.Equal(t, int64(0), w.EscrowBalance)
	require.NoError(t, db.CheckWalletConsistency(ctx, "client"))
}

func TestResolveVerificationTwice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, verification := escrowedBooking(t, db, 300)
	require.NoError(t, db.ApproveVerification(ctx, verification.ID, ""))

	assert.ErrorIs(t, db.ApproveVerification(ctx, verification.ID, ""), ErrAlreadyResolved)
	assert.ErrorIs(t, db.RejectVerification(ctx, verification.ID, "nope"), ErrAlreadyResolved)
}

func TestConcurrentVerificationApproval(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	booking, verification := escrowedBooking(t, db, 300)

	const admins = 2
	errs := make(chan error, admins)
	var wg sync.WaitGroup
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.ApproveVerification(ctx, verification.ID, "racing approval")
		}()
	}
	wg.Wait()
	close(errs)

	var approved, lost int
	for err := range errs {
		switch {
		case err == nil:
			approved++
		case errors.Is(err, ErrAlreadyResolved):
			lost++
		default:
			t.Fatalf("unexpected approval error: %v", err)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, admins-1, lost)

	// the booking confirmed once, the hold untouched
	b, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	w, err := db.GetWallet(ctx, "client")
	require.NoError(t, err)
	assert.Equal(t, int64(300), w.EscrowBalance)
	require.NoError(t, db.CheckWalletConsistency(ctx, "client"))
}

func TestResolveVerificationMissing(t *testing.T) {
	db := newTestDB(t)
	assert.ErrorIs(t, db.ApproveVerification(context.Background(), "missing", ""), ErrNotFound)
}
