package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"talentbook/internal/events"
	"talentbook/internal/models"

	"github.com/google/uuid"
)

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	services, err := json.Marshal(booking.Services)
	if err != nil {
		return fmt.Errorf("failed to encode services: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO bookings (
				id, client_id, talent_id, total_price, services,
				status, scheduled_at, notes, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err = tx.Exec(query,
		booking.ID,
		booking.ClientID,
		booking.TalentID,
		booking.TotalPrice,
		string(services),
		models.BookingPaymentPending,
		booking.ScheduledAt,
		booking.Notes,
		1,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	booking.Status = models.BookingPaymentPending
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if err := insertBookingEventTx(tx, booking, events.EventBookingCreated, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

const bookingColumns = `id, client_id, talent_id, total_price, services, status,
                        scheduled_at, notes, version, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var services string
	var notes sql.NullString
	err := row.Scan(
		&b.ID, &b.ClientID, &b.TalentID, &b.TotalPrice, &services, &b.Status,
		&b.ScheduledAt, &notes, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	b.Notes = notes.String
	if err := json.Unmarshal([]byte(services), &b.Services); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return b, nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(db.QueryRowContext(ctx, query, id))
}

func getBookingTx(tx *sql.Tx, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	return scanBooking(tx.QueryRow(query, id))
}

func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE client_id = ? OR talent_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ListStaleBookings returns bookings in the given status created before
// the cutoff, for the expire sweep.
func (db *DB) ListStaleBookings(ctx context.Context, status string, cutoff time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND created_at < ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, status, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// updateBookingStatusTx advances a booking's status with an optimistic
// version check, mirroring the wallet update contract.
func updateBookingStatusTx(tx *sql.Tx, id string, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := tx.Exec(query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

func insertBookingEventTx(tx *sql.Tx, b *models.Booking, eventType, changedBy string) error {
	event, err := events.New(models.EntityBooking, b.ID, eventType, b.Status, events.BookingPayload{
		BookingID:  b.ID,
		ClientID:   b.ClientID,
		TalentID:   b.TalentID,
		TotalPrice: b.TotalPrice,
		Status:     b.Status,
		Scheduled:  b.ScheduledAt,
		ChangedBy:  changedBy,
	})
	if err != nil {
		return err
	}
	return insertEventTx(tx, event)
}

// EscrowBooking performs the payment_pending -> verification_pending
// transition: the client's coins move into escrow, the pending hold is
// recorded, and the identity-proof review gate opens, all in one unit
// of work.
func (db *DB) EscrowBooking(ctx context.Context, bookingID, fullName, documentRef string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(tx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingPaymentPending {
		return ErrInvalidTransition
	}

	if err := moveToEscrowTx(tx, booking.ClientID, booking.TotalPrice, booking.ID); err != nil {
		return err
	}

	if err := updateBookingStatusTx(tx, booking.ID, booking.Version, models.BookingVerificationPending); err != nil {
		return err
	}
	booking.Status = models.BookingVerificationPending

	verification := &models.Verification{
		ID:          uuid.NewString(),
		BookingID:   booking.ID,
		Status:      models.ResolutionPending,
		FullName:    fullName,
		DocumentRef: documentRef,
		SubmittedAt: time.Now(),
	}
	if err := insertVerificationTx(tx, verification); err != nil {
		return err
	}

	if err := insertBookingEventTx(tx, booking, events.EventBookingEscrowed, booking.ClientID); err != nil {
		return err
	}
	if err := insertVerificationEventTx(tx, verification, events.EventVerificationOpen); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit escrow transition: %w", err)
	}
	return nil
}

// CancelBooking moves a non-terminal booking to cancelled or expired.
// If coins are held in escrow they return to the client in full; there
// is no cancellation fee or partial forfeiture.
func (db *DB) CancelBooking(ctx context.Context, bookingID, terminalStatus, changedBy string) error {
	if terminalStatus != models.BookingCancelled && terminalStatus != models.BookingExpired {
		return ErrInvalidTransition
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(tx, bookingID)
	if err != nil {
		return err
	}
	if booking.IsTerminal() {
		return ErrInvalidTransition
	}

	escrowHeld := booking.Status == models.BookingVerificationPending || booking.Status == models.BookingConfirmed
	if escrowHeld {
		if err := releaseEscrowRefundTx(tx, booking.ClientID, booking.TotalPrice, booking.ID); err != nil {
			return err
		}
	}

	if err := updateBookingStatusTx(tx, booking.ID, booking.Version, terminalStatus); err != nil {
		return err
	}
	booking.Status = terminalStatus

	// An unreviewed verification is closed alongside its booking so it
	// never lingers in the admin queue.
	if err := closeOpenVerificationTx(tx, booking.ID); err != nil {
		return err
	}

	eventType := events.EventBookingCancelled
	if terminalStatus == models.BookingExpired {
		eventType = events.EventBookingExpired
	}
	if err := insertBookingEventTx(tx, booking, eventType, changedBy); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return nil
}

// CompleteBooking performs the confirmed -> completed transition,
// converting the escrow hold into talent earnings.
func (db *DB) CompleteBooking(ctx context.Context, bookingID, changedBy string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	booking, err := getBookingTx(tx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingConfirmed {
		return ErrInvalidTransition
	}

	if err := releaseEscrowToTalentTx(tx, booking.ClientID, booking.TalentID, booking.TotalPrice, booking.ID); err != nil {
		return err
	}

	if err := updateBookingStatusTx(tx, booking.ID, booking.Version, models.BookingCompleted); err != nil {
		return err
	}
	booking.Status = models.BookingCompleted

	if err := insertBookingEventTx(tx, booking, events.EventBookingCompleted, changedBy); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}
