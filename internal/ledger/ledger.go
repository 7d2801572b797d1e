// Package ledger defines the durable credit ledger: per-account balances plus
// an append-only transaction log. Balance mutations go through ApplyDelta,
// which serializes concurrent writers per account and writes the balance and
// the audit record in one database transaction.
package ledger

import (
	"context"
	"errors"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

var (
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")

	// ErrInsufficientFunds is returned when a debit would drive the balance
	// negative. It is an expected business outcome, not a storage fault.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrDuplicateEntry is returned when an append collides with the
	// (generation_id, type) dedup key. The balance is left untouched.
	ErrDuplicateEntry = errors.New("ledger: duplicate transaction")
)

// TxMeta describes the audit record appended alongside a balance change.
type TxMeta struct {
	Type         models.TransactionType
	Description  string
	GenerationID string
}

// Store is the durable ledger contract.
type Store interface {
	// Balance returns the current credit balance for the account.
	Balance(ctx context.Context, accountID string) (int, error)

	// ApplyDelta atomically adjusts the balance and appends the transaction
	// record. A negative delta that would push the balance below zero fails
	// with ErrInsufficientFunds and leaves no trace. Returns the new balance.
	ApplyDelta(ctx context.Context, accountID string, delta int, meta TxMeta) (int, error)

	// History returns the most recent transactions, newest first.
	History(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error)
}

// Terminal reports whether err is a business outcome that retrying cannot
// change. Everything else is treated as a transient storage fault.
func Terminal(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateEntry)
}
