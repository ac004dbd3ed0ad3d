package service

import (
	"context"

	"talentbook/internal/domain"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

// VerificationService fronts the admin review queue for identity
// proofs submitted at payment time.
type VerificationService struct {
	repo     domain.Repository
	maxRetry int
	logger   *zerolog.Logger
}

func NewVerificationService(repo domain.Repository, maxRetry int, logger *zerolog.Logger) *VerificationService {
	if maxRetry <= 0 {
		maxRetry = models.DefaultConflictRetries
	}
	return &VerificationService{
		repo:     repo,
		maxRetry: maxRetry,
		logger:   logger,
	}
}

func (s *VerificationService) GetVerification(ctx context.Context, actor models.Actor, id string) (*models.Verification, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return s.repo.GetVerification(ctx, id)
}

func (s *VerificationService) ListPending(ctx context.Context, actor models.Actor) ([]*models.Verification, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return s.repo.ListPendingVerifications(ctx)
}

// Resolve approves or rejects a pending verification. Rejection needs
// notes so the client learns why their booking was cancelled.
func (s *VerificationService) Resolve(ctx context.Context, actor models.Actor, id string, approve bool, adminNotes string) error {
	if !actor.IsAdmin() {
		return ErrUnauthorized
	}
	if !approve && adminNotes == "" {
		return validationErrorf("admin notes are required to reject a verification")
	}

	var err error
	if approve {
		err = withConflictRetry(ctx, s.maxRetry, "verification_approve", func() error {
			return s.repo.ApproveVerification(ctx, id, adminNotes)
		})
	} else {
		err = withConflictRetry(ctx, s.maxRetry, "verification_reject", func() error {
			return s.repo.RejectVerification(ctx, id, adminNotes)
		})
	}
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("verification_id", id).
		Bool("approved", approve).
		Str("admin_id", actor.ID).
		Msg("verification resolved")
	return nil
}
