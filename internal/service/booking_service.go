package service

import (
	"context"
	"time"

	"talentbook/internal/domain"
	"talentbook/internal/metrics"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	maxRetry int
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, maxRetry int, logger *zerolog.Logger) *BookingService {
	if maxRetry <= 0 {
		maxRetry = models.DefaultConflictRetries
	}
	return &BookingService{
		repo:     repo,
		maxRetry: maxRetry,
		logger:   logger,
	}
}

// AdvanceInput carries the action and the action-specific fields for
// one booking transition.
type AdvanceInput struct {
	Action      string
	FullName    string
	DocumentRef string
}

func (s *BookingService) validateNew(booking *models.Booking) error {
	if booking.ClientID == "" || booking.TalentID == "" {
		return validationErrorf("client id and talent id are required")
	}
	if booking.ClientID == booking.TalentID {
		return validationErrorf("client and talent must differ")
	}
	if len(booking.Services) == 0 {
		return validationErrorf("at least one service line is required")
	}

	var sum int64
	for _, line := range booking.Services {
		if line.Name == "" {
			return validationErrorf("service line name is required")
		}
		if line.Price <= 0 {
			return validationErrorf("service line %q price must be positive", line.Name)
		}
		sum += line.Price
	}
	if booking.TotalPrice != sum {
		return validationErrorf("total price %d does not match service lines sum %d", booking.TotalPrice, sum)
	}

	if booking.ScheduledAt.Before(time.Now()) {
		return validationErrorf("scheduled time is in the past")
	}
	return nil
}

// CreateBooking opens a booking in payment_pending. No coins move until
// the pay action.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, booking *models.Booking) error {
	if !actor.IsAdmin() && actor.ID != booking.ClientID {
		return ErrUnauthorized
	}
	if err := s.validateNew(booking); err != nil {
		return err
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		metrics.IncBookingTransition("create", "error")
		return err
	}

	metrics.IncBookingTransition("create", "ok")
	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("client_id", booking.ClientID).
		Str("talent_id", booking.TalentID).
		Int64("total_price", booking.TotalPrice).
		Msg("booking created")
	return nil
}

// authorize checks the actor's capability for an action against the
// booking's parties. State-machine legality is checked separately in
// the store, so an admin passing here can still get InvalidTransition.
func (s *BookingService) authorize(action string, actor models.Actor, booking *models.Booking) error {
	if actor.IsAdmin() {
		return nil
	}
	switch action {
	case models.ActionPay:
		if actor.ID == booking.ClientID {
			return nil
		}
	case models.ActionCancel:
		// A client can back out only before confirmation; once the
		// booking is confirmed the cancel edge belongs to the talent.
		if actor.ID == booking.ClientID && booking.Status != models.BookingConfirmed {
			return nil
		}
		if actor.ID == booking.TalentID {
			return nil
		}
	case models.ActionComplete:
		// Only the talent confirms the work happened.
		if actor.ID == booking.TalentID && actor.IsTalent() {
			return nil
		}
	case models.ActionExpire:
		// Expiry belongs to the sweep, which runs as admin.
	}
	return ErrUnauthorized
}

// AdvanceBooking applies one lifecycle action to a booking. Conflicting
// writers are retried internally; each retry re-reads the row, so a
// transition that became illegal mid-flight surfaces as
// InvalidTransition rather than a stale write.
func (s *BookingService) AdvanceBooking(ctx context.Context, actor models.Actor, bookingID string, input AdvanceInput) error {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.authorize(input.Action, actor, booking); err != nil {
		return err
	}

	switch input.Action {
	case models.ActionPay:
		if input.FullName == "" || input.DocumentRef == "" {
			return validationErrorf("full name and document reference are required to pay")
		}
		err = withConflictRetry(ctx, s.maxRetry, "booking_pay", func() error {
			return s.repo.EscrowBooking(ctx, bookingID, input.FullName, input.DocumentRef)
		})
	case models.ActionCancel:
		err = withConflictRetry(ctx, s.maxRetry, "booking_cancel", func() error {
			return s.repo.CancelBooking(ctx, bookingID, models.BookingCancelled, actor.ID)
		})
	case models.ActionComplete:
		err = withConflictRetry(ctx, s.maxRetry, "booking_complete", func() error {
			return s.repo.CompleteBooking(ctx, bookingID, actor.ID)
		})
	case models.ActionExpire:
		err = withConflictRetry(ctx, s.maxRetry, "booking_expire", func() error {
			return s.repo.CancelBooking(ctx, bookingID, models.BookingExpired, actor.ID)
		})
	default:
		return validationErrorf("unknown action %q", input.Action)
	}

	if err != nil {
		metrics.IncBookingTransition(input.Action, "error")
		return err
	}

	metrics.IncBookingTransition(input.Action, "ok")
	s.logger.Info().
		Str("booking_id", bookingID).
		Str("action", input.Action).
		Str("actor_id", actor.ID).
		Str("actor_role", actor.Role).
		Msg("booking advanced")
	return nil
}

func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != booking.ClientID && actor.ID != booking.TalentID {
		return nil, ErrUnauthorized
	}
	return booking, nil
}

func (s *BookingService) GetUserBookings(ctx context.Context, actor models.Actor, userID string) ([]*models.Booking, error) {
	if !actor.IsAdmin() && actor.ID != userID {
		return nil, ErrUnauthorized
	}
	return s.repo.GetUserBookings(ctx, userID)
}
