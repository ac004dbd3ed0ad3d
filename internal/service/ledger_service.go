package service

import (
	"context"
	"fmt"

	"talentbook/internal/database"
	"talentbook/internal/domain"
	"talentbook/internal/metrics"
	"talentbook/internal/models"

	"github.com/rs/zerolog"
)

// LedgerService owns the non-booking spend and credit paths: purchase
// credits, gifts, premium unlocks, and the wallet read surface.
type LedgerService struct {
	repo     domain.Repository
	maxRetry int
	logger   *zerolog.Logger
}

func NewLedgerService(repo domain.Repository, maxRetry int, logger *zerolog.Logger) *LedgerService {
	if maxRetry <= 0 {
		maxRetry = models.DefaultConflictRetries
	}
	return &LedgerService{
		repo:     repo,
		maxRetry: maxRetry,
		logger:   logger,
	}
}

// GetWalletBalance provisions the wallet on first touch.
func (s *LedgerService) GetWalletBalance(ctx context.Context, userID string) (*models.Wallet, error) {
	if userID == "" {
		return nil, validationErrorf("user id is required")
	}
	return s.repo.GetOrCreateWallet(ctx, userID)
}

func (s *LedgerService) ListTransactions(ctx context.Context, actor models.Actor, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	if userID == "" {
		return nil, validationErrorf("user id is required")
	}
	if !actor.IsAdmin() && actor.ID != userID {
		return nil, ErrUnauthorized
	}
	return s.repo.ListTransactions(ctx, userID, filter)
}

// CreditPurchase applies a purchase credit after the payment gateway
// confirmed the charge. The gateway callback itself lives outside this
// service; only the confirmed coin amount and its reference arrive here.
func (s *LedgerService) CreditPurchase(ctx context.Context, userID string, coins int64, reference string) (*models.Transaction, error) {
	if userID == "" {
		return nil, validationErrorf("user id is required")
	}
	if coins <= 0 {
		return nil, validationErrorf("purchase amount must be positive, got %d", coins)
	}

	if _, err := s.repo.GetOrCreateWallet(ctx, userID); err != nil {
		return nil, err
	}

	var entry *models.Transaction
	err := withConflictRetry(ctx, s.maxRetry, "credit_purchase", func() error {
		var err error
		entry, err = s.repo.ApplyLedgerEntry(ctx, userID, coins, models.TxPurchase, reference,
			fmt.Sprintf("Coin purchase (%d coins)", coins))
		return err
	})
	if err != nil {
		metrics.IncLedgerEntry(models.TxPurchase, "error")
		return nil, err
	}

	metrics.IncLedgerEntry(models.TxPurchase, "ok")
	s.logger.Info().
		Str("user_id", userID).
		Int64("coins", coins).
		Str("reference", reference).
		Msg("purchase credited")
	return entry, nil
}

// Gift moves coins from the actor's wallet to another user's.
func (s *LedgerService) Gift(ctx context.Context, actor models.Actor, toUserID string, coins int64, message string) error {
	if toUserID == "" {
		return validationErrorf("recipient is required")
	}
	if coins <= 0 {
		return validationErrorf("gift amount must be positive, got %d", coins)
	}
	if actor.ID == toUserID {
		return validationErrorf("cannot gift yourself")
	}

	description := "Gift"
	if message != "" {
		description = "Gift: " + message
	}

	err := withConflictRetry(ctx, s.maxRetry, "gift", func() error {
		return s.repo.Transfer(ctx, actor.ID, toUserID, coins, models.TxGift, "", description)
	})
	if err != nil {
		metrics.IncLedgerEntry(models.TxGift, "error")
		return err
	}

	metrics.IncLedgerEntry(models.TxGift, "ok")
	s.logger.Info().
		Str("from", actor.ID).
		Str("to", toUserID).
		Int64("coins", coins).
		Msg("gift sent")
	return nil
}

// UnlockPremium charges the actor for a talent's premium media item and
// credits the talent in the same transfer.
func (s *LedgerService) UnlockPremium(ctx context.Context, actor models.Actor, talentID, mediaID string, price int64) error {
	if talentID == "" || mediaID == "" {
		return validationErrorf("talent id and media id are required")
	}
	if price <= 0 {
		return validationErrorf("unlock price must be positive, got %d", price)
	}
	if actor.ID == talentID {
		return validationErrorf("cannot unlock own media")
	}

	err := withConflictRetry(ctx, s.maxRetry, "premium_unlock", func() error {
		return s.repo.Transfer(ctx, actor.ID, talentID, price, models.TxPremiumUnlock, mediaID,
			"Premium media unlock")
	})
	if err != nil {
		metrics.IncLedgerEntry(models.TxPremiumUnlock, "error")
		return err
	}

	metrics.IncLedgerEntry(models.TxPremiumUnlock, "ok")
	return nil
}

// CheckConsistency re-derives one wallet's balances from its ledger.
func (s *LedgerService) CheckConsistency(ctx context.Context, userID string) error {
	err := s.repo.CheckWalletConsistency(ctx, userID)
	if err != nil && err != database.ErrNotFound {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("wallet consistency check failed")
	}
	return err
}
