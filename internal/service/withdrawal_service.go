package service

import (
	"context"
	"time"

	"talentbook/internal/domain"
	"talentbook/internal/metrics"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

// WithdrawalService fronts the payout pipeline: talents ask to cash
// out, admins resolve.
type WithdrawalService struct {
	repo     domain.Repository
	batch    domain.BatchWriter
	minCoins int64
	maxRetry int
	logger   *zerolog.Logger
}

func NewWithdrawalService(repo domain.Repository, batch domain.BatchWriter, minCoins int64, maxRetry int, logger *zerolog.Logger) *WithdrawalService {
	if minCoins <= 0 {
		minCoins = models.DefaultWithdrawalMin
	}
	if maxRetry <= 0 {
		maxRetry = models.DefaultConflictRetries
	}
	return &WithdrawalService{
		repo:     repo,
		batch:    batch,
		minCoins: minCoins,
		maxRetry: maxRetry,
		logger:   logger,
	}
}

// Request opens a withdrawal for the acting talent. The balance is
// checked now and again at approval time; nothing is held in between.
func (s *WithdrawalService) Request(ctx context.Context, actor models.Actor, amount int64, bank models.BankDetails) (*models.WithdrawalRequest, error) {
	if !actor.IsTalent() {
		return nil, ErrUnauthorized
	}
	if amount < s.minCoins {
		return nil, validationErrorf("withdrawal amount %d is below the minimum of %d coins", amount, s.minCoins)
	}
	if bank.BankName == "" || bank.AccountNumber == "" || bank.AccountName == "" {
		return nil, validationErrorf("complete bank details are required")
	}

	req := &models.WithdrawalRequest{
		TalentID: actor.ID,
		Amount:   amount,
		Bank:     bank,
	}
	err := withConflictRetry(ctx, s.maxRetry, "withdrawal_request", func() error {
		return s.repo.CreateWithdrawalRequest(ctx, req)
	})
	if err != nil {
		metrics.IncLedgerEntry(models.TxPayout, "error")
		return nil, err
	}

	s.logger.Info().
		Str("request_id", req.ID).
		Str("talent_id", actor.ID).
		Int64("amount", amount).
		Msg("withdrawal requested")
	return req, nil
}

func (s *WithdrawalService) GetRequest(ctx context.Context, actor models.Actor, id string) (*models.WithdrawalRequest, error) {
	req, err := s.repo.GetWithdrawalRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.ID != req.TalentID {
		return nil, ErrUnauthorized
	}
	return req, nil
}

func (s *WithdrawalService) ListPending(ctx context.Context, actor models.Actor) ([]*models.WithdrawalRequest, error) {
	if !actor.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return s.repo.ListPendingWithdrawals(ctx)
}

// ExportBatch writes all withdrawals approved since the cutoff to a
// bank upload file and returns its path and row count.
func (s *WithdrawalService) ExportBatch(ctx context.Context, actor models.Actor, since time.Time) (string, int, error) {
	if !actor.IsAdmin() {
		return "", 0, ErrUnauthorized
	}
	if s.batch == nil {
		return "", 0, validationErrorf("payout export is not configured")
	}

	payouts, err := s.repo.ListApprovedWithdrawals(ctx, since)
	if err != nil {
		return "", 0, err
	}
	if len(payouts) == 0 {
		return "", 0, validationErrorf("no approved withdrawals since %s", since.Format(time.RFC3339))
	}

	path, err := s.batch.WriteBatch(payouts)
	if err != nil {
		return "", 0, err
	}

	s.logger.Info().
		Str("file", path).
		Int("count", len(payouts)).
		Str("admin_id", actor.ID).
		Msg("payout batch exported")
	return path, len(payouts), nil
}

// Resolve approves or rejects a pending request. Approval re-checks
// the talent's balance inside the store transaction; a shortfall
// surfaces as InsufficientFunds and leaves the request pending.
func (s *WithdrawalService) Resolve(ctx context.Context, actor models.Actor, id string, approve bool, adminNotes string) error {
	if !actor.IsAdmin() {
		return ErrUnauthorized
	}
	if !approve && adminNotes == "" {
		return validationErrorf("admin notes are required to reject a withdrawal")
	}

	var err error
	if approve {
		err = withConflictRetry(ctx, s.maxRetry, "withdrawal_approve", func() error {
			return s.repo.ApproveWithdrawal(ctx, id, adminNotes)
		})
	} else {
		err = withConflictRetry(ctx, s.maxRetry, "withdrawal_reject", func() error {
			return s.repo.RejectWithdrawal(ctx, id, adminNotes)
		})
	}
	if err != nil {
		metrics.IncLedgerEntry(models.TxPayout, "error")
		return err
	}

	outcome := "approved"
	if !approve {
		outcome = "rejected"
	}
	metrics.IncLedgerEntry(models.TxPayout, outcome)
	s.logger.Info().
		Str("request_id", id).
		Str("outcome", outcome).
		Str("admin_id", actor.ID).
		Msg("withdrawal resolved")
	return nil
}
