package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) DB() *sql.DB {
	return r.db
}

const accountColumns = `id, external_id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), plan, credits, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.ExternalID, &a.Email, &a.FirstName, &a.LastName, &a.Plan, &a.Credits, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return scanAccount(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Plan == "" {
		account.Plan = models.PlanFree
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	const query = `
INSERT INTO accounts (id, external_id, email, first_name, last_name, plan, credits, created_at, updated_at)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, account.ID, account.ExternalID, account.Email, account.FirstName, account.LastName, string(account.Plan), account.Credits, now, now); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

// Ensure looks up the account by its verified external identity and creates
// it with the signup balance when absent. Reports whether it was created.
func (r *AccountRepository) Ensure(ctx context.Context, externalID, email, firstName, lastName string, signupCredits int) (*models.Account, bool, error) {
	account, err := r.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, false, err
	}
	if account != nil {
		return account, false, nil
	}
	created, err := r.Create(ctx, &models.Account{
		ExternalID: externalID,
		Email:      email,
		FirstName:  firstName,
		LastName:   lastName,
		Plan:       models.PlanFree,
		Credits:    signupCredits,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *AccountRepository) UpdatePlan(ctx context.Context, accountID string, plan models.PlanTier) error {
	const query = `UPDATE accounts SET plan = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(plan), time.Now().UTC(), accountID); err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}
