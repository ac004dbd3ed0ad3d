package service

import (
	"context"
	"errors"
	"time"

	"talentbook/internal/database"
	"talentbook/internal/domain"
	"talentbook/internal/metrics"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

// Sweeper expires stale bookings on a timer: unpaid bookings after the
// payment TTL, unreviewed ones after the verification TTL. It moves
// each booking through the same guarded transition as a manual cancel,
// so a concurrent pay or resolve simply wins the row.
type Sweeper struct {
	repo            domain.Repository
	interval        time.Duration
	paymentTTL      time.Duration
	verificationTTL time.Duration
	maxRetry        int
	logger          *zerolog.Logger
}

func NewSweeper(repo domain.Repository, interval, paymentTTL, verificationTTL time.Duration, maxRetry int, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if paymentTTL <= 0 {
		paymentTTL = time.Duration(models.DefaultPaymentPendingTTL) * time.Second
	}
	if verificationTTL <= 0 {
		verificationTTL = time.Duration(models.DefaultVerificationTTL) * time.Second
	}
	if maxRetry <= 0 {
		maxRetry = models.DefaultConflictRetries
	}
	return &Sweeper{
		repo:            repo,
		interval:        interval,
		paymentTTL:      paymentTTL,
		verificationTTL: verificationTTL,
		maxRetry:        maxRetry,
		logger:          logger,
	}
}

// Run blocks until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("payment_ttl", s.paymentTTL).
		Dur("verification_ttl", s.verificationTTL).
		Msg("expiration sweep started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiration sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("sweep pass failed")
			}
		}
	}
}

// SweepOnce expires every stale booking found right now and returns
// how many it moved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := time.Now()
	expired := 0

	for _, pass := range []struct {
		status string
		cutoff time.Time
	}{
		{models.BookingPaymentPending, now.Add(-s.paymentTTL)},
		{models.BookingVerificationPending, now.Add(-s.verificationTTL)},
	} {
		stale, err := s.repo.ListStaleBookings(ctx, pass.status, pass.cutoff)
		if err != nil {
			return expired, err
		}

		for _, booking := range stale {
			err := withConflictRetry(ctx, s.maxRetry, "booking_expire", func() error {
				return s.repo.CancelBooking(ctx, booking.ID, models.BookingExpired, models.System.ID)
			})
			switch {
			case err == nil:
				expired++
				metrics.IncBookingTransition(models.ActionExpire, "ok")
				s.logger.Info().
					Str("booking_id", booking.ID).
					Str("was_status", pass.status).
					Msg("booking expired")
			case errors.Is(err, database.ErrInvalidTransition):
				// Someone advanced the booking between the listing and
				// this write. Nothing to do.
			default:
				metrics.IncBookingTransition(models.ActionExpire, "error")
				s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("expire failed")
			}
		}
	}

	return expired, nil
}
