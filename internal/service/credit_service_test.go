package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

// flakyStore fails ApplyDelta with a scripted error sequence before
// succeeding, recording every attempt.
type flakyStore struct {
	failures []error
	calls    int
	balance  int
	applied  []ledger.TxMeta
}

func (f *flakyStore) ApplyDelta(ctx context.Context, accountID string, delta int, meta ledger.TxMeta) (int, error) {
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return 0, err
		}
	}
	f.balance += delta
	f.applied = append(f.applied, meta)
	return f.balance, nil
}

func (f *flakyStore) Balance(ctx context.Context, accountID string) (int, error) {
	return f.balance, nil
}

func (f *flakyStore) History(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error) {
	return nil, nil
}

// lostAckStore commits the first delta but reports a transient fault, then
// rejects replays of the same (generation, type) pair like the real ledger.
type lostAckStore struct {
	balance int
	calls   int
	seen    map[string]bool
}

func (s *lostAckStore) ApplyDelta(ctx context.Context, accountID string, delta int, meta ledger.TxMeta) (int, error) {
	s.calls++
	key := meta.GenerationID + "/" + string(meta.Type)
	if s.seen[key] {
		return 0, ledger.ErrDuplicateEntry
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[key] = true
	s.balance += delta
	if s.calls == 1 {
		return 0, errors.New("connection reset before commit ack")
	}
	return s.balance, nil
}

func (s *lostAckStore) Balance(ctx context.Context, accountID string) (int, error) {
	return s.balance, nil
}

func (s *lostAckStore) History(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReserveWithRetryRecoversFromTransientFault(t *testing.T) {
	store := &flakyStore{balance: 5, failures: []error{errors.New("deadlock")}}
	credits := NewCreditService(store, testLogger())

	ok, err := credits.ReserveWithRetry(context.Background(), "acc-1", 2, "Thumbnail generation", "gen-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, store.calls)
	require.Equal(t, 3, store.balance)
}

func TestReserveWithRetryDoesNotRetryInsufficientFunds(t *testing.T) {
	store := &flakyStore{failures: []error{ledger.ErrInsufficientFunds}}
	credits := NewCreditService(store, testLogger())

	ok, err := credits.ReserveWithRetry(context.Background(), "acc-1", 2, "Thumbnail generation", "gen-1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, store.calls, "insufficient funds must never be retried")
}

func TestReserveWithRetryExhaustsAttempts(t *testing.T) {
	fault := errors.New("connection reset")
	store := &flakyStore{failures: []error{fault, fault, fault}}
	credits := NewCreditService(store, testLogger())

	_, err := credits.ReserveWithRetry(context.Background(), "acc-1", 2, "Thumbnail generation", "gen-1")
	require.ErrorIs(t, err, ErrRetryExhausted)
	require.ErrorIs(t, err, fault)
	require.Equal(t, defaultMaxAttempts, store.calls)
}

func TestReserveWithRetryTreatsDedupCollisionAsCommitted(t *testing.T) {
	// The first attempt's debit lands but the commit ack is lost; the retry
	// collides with the (generation, USAGE) dedup key. That collision proves
	// the debit is already on the ledger, so the reserve succeeded.
	store := &lostAckStore{balance: 5}
	credits := NewCreditService(store, testLogger())

	ok, err := credits.ReserveWithRetry(context.Background(), "acc-1", 2, "Thumbnail generation", "gen-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, store.calls)
	require.Equal(t, 3, store.balance, "the debit must land exactly once")
}

func TestReserveWithRetryStopsOnUnknownAccount(t *testing.T) {
	store := &flakyStore{failures: []error{ledger.ErrAccountNotFound}}
	credits := NewCreditService(store, testLogger())

	_, err := credits.ReserveWithRetry(context.Background(), "missing", 2, "Thumbnail generation", "gen-1")
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)
	require.Equal(t, 1, store.calls)
}

func TestRefundSuppressesDuplicate(t *testing.T) {
	store := &flakyStore{failures: []error{ledger.ErrDuplicateEntry}}
	credits := NewCreditService(store, testLogger())

	ok, err := credits.Refund(context.Background(), "acc-1", 2, "Generation failed - refund", "gen-1")
	require.NoError(t, err)
	require.True(t, ok, "an already-recorded refund counts as success")
	require.Equal(t, 0, store.balance)
}

func TestRefundRetriesTransientFault(t *testing.T) {
	store := &flakyStore{failures: []error{errors.New("timeout")}}
	credits := NewCreditService(store, testLogger())

	ok, err := credits.Refund(context.Background(), "acc-1", 2, "Generation failed - refund", "gen-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, store.balance)
	require.Equal(t, models.TransactionRefund, store.applied[0].Type)
}

func TestGrantRejectsUsageType(t *testing.T) {
	credits := NewCreditService(&flakyStore{}, testLogger())

	_, err := credits.Grant(context.Background(), "acc-1", 5, models.TransactionUsage, "backfill")
	require.Error(t, err)
}

func TestReserveRejectsNonPositiveAmount(t *testing.T) {
	credits := NewCreditService(&flakyStore{balance: 5}, testLogger())

	_, err := credits.Reserve(context.Background(), "acc-1", 0, "Thumbnail generation", "gen-1")
	require.Error(t, err)
	_, err = credits.Refund(context.Background(), "acc-1", -1, "refund", "gen-1")
	require.Error(t, err)
}
