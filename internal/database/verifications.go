package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"talentbook/internal/events"
	"talentbook/internal/models"
)

func insertVerificationTx(tx *sql.Tx, v *models.Verification) error {
	query := `INSERT INTO verifications (id, booking_id, status, full_name, document_ref, admin_notes, submitted_at)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.Exec(query, v.ID, v.BookingID, v.Status, v.FullName, v.DocumentRef, v.AdminNotes, v.SubmittedAt)
	if err != nil {
		return fmt.Errorf("failed to insert verification: %w", err)
	}
	return nil
}

func insertVerificationEventTx(tx *sql.Tx, v *models.Verification, eventType string) error {
	event, err := events.New(models.EntityVerification, v.ID, eventType, v.Status, events.VerificationPayload{
		VerificationID: v.ID,
		BookingID:      v.BookingID,
		Status:         v.Status,
		AdminNotes:     v.AdminNotes,
	})
	if err != nil {
		return err
	}
	return insertEventTx(tx, event)
}

const verificationColumns = `id, booking_id, status, full_name, document_ref, admin_notes, submitted_at, resolved_at`

func scanVerification(row interface{ Scan(...any) error }) (*models.Verification, error) {
	v := &models.Verification{}
	var fullName, documentRef, adminNotes sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(&v.ID, &v.BookingID, &v.Status, &fullName, &documentRef, &adminNotes, &v.SubmittedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan verification: %w", err)
	}
	v.FullName = fullName.String
	v.DocumentRef = documentRef.String
	v.AdminNotes = adminNotes.String
	if resolvedAt.Valid {
		v.ResolvedAt = &resolvedAt.Time
	}
	return v, nil
}

func (db *DB) GetVerification(ctx context.Context, id string) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE id = ?`
	return scanVerification(db.QueryRowContext(ctx, query, id))
}

func (db *DB) GetVerificationByBooking(ctx context.Context, bookingID string) (*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE booking_id = ?`
	return scanVerification(db.QueryRowContext(ctx, query, bookingID))
}

// ListPendingVerifications returns the admin review queue, oldest first.
func (db *DB) ListPendingVerifications(ctx context.Context) ([]*models.Verification, error) {
	query := `SELECT ` + verificationColumns + ` FROM verifications WHERE status = ? ORDER BY submitted_at ASC`
	rows, err := db.QueryContext(ctx, query, models.ResolutionPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending verifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// resolveVerificationTx flips a pending verification to its terminal
// status. Zero rows affected means another admin resolved it first.
func resolveVerificationTx(tx *sql.Tx, id, status, adminNotes string) error {
	query := `UPDATE verifications SET status = ?, admin_notes = ?, resolved_at = ? WHERE id = ? AND status = ?`
	result, err := tx.Exec(query, status, adminNotes, time.Now(), id, models.ResolutionPending)
	if err != nil {
		return fmt.Errorf("failed to resolve verification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// closeOpenVerificationTx rejects an unreviewed verification when its
// booking is cancelled or expires out from under it.
func closeOpenVerificationTx(tx *sql.Tx, bookingID string) error {
	query := `UPDATE verifications SET status = ?, admin_notes = ?, resolved_at = ?
              WHERE booking_id = ? AND status = ?`
	_, err := tx.Exec(query, models.ResolutionRejected, "Booking was cancelled before review", time.Now(), bookingID, models.ResolutionPending)
	if err != nil {
		return fmt.Errorf("failed to close open verification: %w", err)
	}
	return nil
}

// ApproveVerification resolves the review gate and drives the owning
// booking from verification_pending to confirmed. The escrow hold
// stays in place until completion.
func (db *DB) ApproveVerification(ctx context.Context, id, adminNotes string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	verification, err := scanVerification(tx.QueryRow(`SELECT `+verificationColumns+` FROM verifications WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if verification.Status != models.ResolutionPending {
		return ErrAlreadyResolved
	}

	booking, err := getBookingTx(tx, verification.BookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingVerificationPending {
		return ErrInvalidTransition
	}

	if err := resolveVerificationTx(tx, id, models.ResolutionApproved, adminNotes); err != nil {
		return err
	}
	verification.Status = models.ResolutionApproved
	verification.AdminNotes = adminNotes

	if err := updateBookingStatusTx(tx, booking.ID, booking.Version, models.BookingConfirmed); err != nil {
		return err
	}
	booking.Status = models.BookingConfirmed

	if err := insertVerificationEventTx(tx, verification, events.EventVerificationDone); err != nil {
		return err
	}
	if err := insertBookingEventTx(tx, booking, events.EventBookingConfirmed, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verification approval: %w", err)
	}
	return nil
}

// RejectVerification resolves the review gate negatively, cancelling
// the owning booking and refunding the full escrow hold.
func (db *DB) RejectVerification(ctx context.Context, id, adminNotes string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	verification, err := scanVerification(tx.QueryRow(`SELECT `+verificationColumns+` FROM verifications WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if verification.Status != models.ResolutionPending {
		return ErrAlreadyResolved
	}

	booking, err := getBookingTx(tx, verification.BookingID)
	if err != nil {
		return err
	}
	if booking.Status != models.BookingVerificationPending {
		return ErrInvalidTransition
	}

	if err := resolveVerificationTx(tx, id, models.ResolutionRejected, adminNotes); err != nil {
		return err
	}
	verification.Status = models.ResolutionRejected
	verification.AdminNotes = adminNotes

	if err := releaseEscrowRefundTx(tx, booking.ClientID, booking.TotalPrice, booking.ID); err != nil {
		return err
	}

	if err := updateBookingStatusTx(tx, booking.ID, booking.Version, models.BookingCancelled); err != nil {
		return err
	}
	booking.Status = models.BookingCancelled

	if err := insertVerificationEventTx(tx, verification, events.EventVerificationDone); err != nil {
		return err
	}
	if err := insertBookingEventTx(tx, booking, events.EventBookingCancelled, ""); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit verification rejection: %w", err)
	}
	return nil
}
