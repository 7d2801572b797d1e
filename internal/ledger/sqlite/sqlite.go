// Package sqlite implements the ledger store on SQLite for local deployments
// and tests. The store opens its own handle and bootstraps the full schema.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows a single writer; one connection serializes concurrent
	// ApplyDelta callers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	external_id TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	plan TEXT NOT NULL DEFAULT 'FREE',
	credits INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS credit_transactions (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	amount INTEGER NOT NULL,
	type TEXT NOT NULL,
	description TEXT,
	generation_id TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_generation_type ON credit_transactions(generation_id, type);
CREATE INDEX IF NOT EXISTS idx_tx_account_created ON credit_transactions(account_id, created_at DESC);
CREATE TABLE IF NOT EXISTS generations (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	prompt TEXT NOT NULL,
	enhanced_prompt TEXT,
	image_url TEXT,
	status TEXT NOT NULL DEFAULT 'PENDING',
	credits_used INTEGER NOT NULL,
	width INTEGER NOT NULL DEFAULT 1280,
	height INTEGER NOT NULL DEFAULT 720,
	persona_id TEXT,
	style_id TEXT,
	parent_id TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_account_created ON generations(account_id, created_at DESC);
CREATE TABLE IF NOT EXISTS personas (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	name TEXT NOT NULL,
	description TEXT,
	image_url TEXT NOT NULL,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS styles (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	name TEXT NOT NULL,
	description TEXT,
	palette TEXT,
	mood TEXT,
	visual_style TEXT,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS style_images (
	id TEXT PRIMARY KEY,
	style_id TEXT NOT NULL REFERENCES styles(id),
	image_url TEXT NOT NULL,
	position INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so repositories can share the store's
// database in local and test setups.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
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
	const selectQuery = `SELECT credits FROM accounts WHERE id = ?`
	if err := tx.QueryRowContext(ctx, selectQuery, accountID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ledger.ErrAccountNotFound
		}
		return 0, fmt.Errorf("select account: %w", err)
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
		if isUniqueViolation(err) {
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

func isUniqueViolation(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == 2067 || code == 19 || code == 1555
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
