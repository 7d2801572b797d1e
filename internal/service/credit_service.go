package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

// ErrRetryExhausted wraps the last storage fault after all reserve/refund
// attempts failed. Callers treat it as a hard failure.
var ErrRetryExhausted = errors.New("credit operation retries exhausted")

const (
	defaultMaxAttempts = 3
	retryBackoffBase   = 100 * time.Millisecond
)

// CreditService exposes business-level credit operations with bounded retry
// against transient storage contention. Insufficient funds is reported as a
// normal outcome, never retried.
type CreditService struct {
	store ledger.Store
	log   *slog.Logger
}

func NewCreditService(store ledger.Store, log *slog.Logger) *CreditService {
	return &CreditService{store: store, log: log}
}

// Reserve debits amount credits for a generation. Returns false when the
// balance does not cover the amount. A dedup collision means an earlier
// attempt for the same generation already committed its debit, so it is
// reported as success rather than charging twice.
func (s *CreditService) Reserve(ctx context.Context, accountID string, amount int, description, generationID string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("reserve amount must be positive, got %d", amount)
	}
	_, err := s.store.ApplyDelta(ctx, accountID, -amount, ledger.TxMeta{
		Type:         models.TransactionUsage,
		Description:  description,
		GenerationID: generationID,
	})
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return false, nil
	}
	if errors.Is(err, ledger.ErrDuplicateEntry) {
		s.log.Info("duplicate reserve suppressed", "account", accountID, "generation", generationID)
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReserveWithRetry retries Reserve on transient storage faults with
// exponential backoff. Insufficient funds is terminal and returned
// immediately as false.
func (s *CreditService) ReserveWithRetry(ctx context.Context, accountID string, amount int, description, generationID string) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		ok, err := s.Reserve(ctx, accountID, amount, description, generationID)
		if err == nil {
			return ok, nil
		}
		if ledger.Terminal(err) {
			return false, err
		}
		lastErr = err
		s.log.Warn("credit reserve failed, retrying", "account", accountID, "attempt", attempt, "err", err)
		if attempt < defaultMaxAttempts {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return false, err
			}
		}
	}
	return false, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// Refund returns amount credits to the account, retrying transient faults.
// A refund already recorded for the same generation is suppressed by the
// ledger dedup key and reported as success.
func (s *CreditService) Refund(ctx context.Context, accountID string, amount int, description, generationID string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	meta := ledger.TxMeta{
		Type:         models.TransactionRefund,
		Description:  description,
		GenerationID: generationID,
	}

	var lastErr error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		_, err := s.store.ApplyDelta(ctx, accountID, amount, meta)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			s.log.Info("duplicate refund suppressed", "account", accountID, "generation", generationID)
			return true, nil
		}
		if ledger.Terminal(err) {
			return false, err
		}
		lastErr = err
		s.log.Warn("credit refund failed, retrying", "account", accountID, "attempt", attempt, "err", err)
		if attempt < defaultMaxAttempts {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return false, err
			}
		}
	}
	return false, fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr)
}

// Grant adds purchased or bonus credits to the account.
func (s *CreditService) Grant(ctx context.Context, accountID string, amount int, txType models.TransactionType, description string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	if txType != models.TransactionPurchase && txType != models.TransactionBonus {
		return 0, fmt.Errorf("unsupported grant type: %s", txType)
	}
	balance, err := s.store.ApplyDelta(ctx, accountID, amount, ledger.TxMeta{
		Type:        txType,
		Description: description,
	})
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return balance, nil
}

func (s *CreditService) Balance(ctx context.Context, accountID string) (int, error) {
	return s.store.Balance(ctx, accountID)
}

func (s *CreditService) History(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error) {
	return s.store.History(ctx, accountID, limit)
}

func backoff(attempt int) time.Duration {
	return retryBackoffBase << (attempt - 1)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
