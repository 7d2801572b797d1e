// Package mysql implements the ledger store on MySQL. Concurrent balance
// mutations for one account serialize on the row lock taken by
// SELECT ... FOR UPDATE inside the transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

const duplicateKeyErr = 1062

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Balance(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT credits FROM accounts WHERE id = ?`
	var balance int
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrAccountNotFound
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

func (s *Store) ApplyDelta(ctx context.Context, accountID string, delta int, meta ledger.TxMeta) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance int
	const lockQuery = `SELECT credits FROM accounts WHERE id = ? FOR UPDATE`
	if err := tx.QueryRowContext(ctx, lockQuery, accountID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrAccountNotFound
		}
		return 0, fmt.Errorf("lock account row: %w", err)
	}

	newBalance := balance + delta
	if delta < 0 && newBalance < 0 {
		return 0, ledger.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	const updateQuery = `UPDATE accounts SET credits = ?, updated_at = ? WHERE id = ?`
	if _, err := tx.ExecContext(ctx, updateQuery, newBalance, now, accountID); err != nil {
		return 0, fmt.Errorf("update balance: %w", err)
	}

	const insertQuery = `
INSERT INTO credit_transactions (id, account_id, amount, type, description, generation_id, created_at)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?)`
	if _, err := tx.ExecContext(ctx, insertQuery, uuid.NewString(), accountID, delta, string(meta.Type), meta.Description, meta.GenerationID, now); err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == duplicateKeyErr {
			return 0, ledger.ErrDuplicateEntry
		}
		return 0, fmt.Errorf("append transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return newBalance, nil
}

func (s *Store) History(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
SELECT id, account_id, amount, type, COALESCE(description, ''), COALESCE(generation_id, ''), created_at
FROM credit_transactions
WHERE account_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var entries []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Type, &t.Description, &t.GenerationID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}
