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

type PersonaRepository struct {
	db *sql.DB
}

func NewPersonaRepository(db *sql.DB) *PersonaRepository {
	return &PersonaRepository{db: db}
}

const personaColumns = `id, account_id, name, COALESCE(description, ''), image_url, usage_count, created_at, updated_at`

func (r *PersonaRepository) Create(ctx context.Context, p *models.Persona) (*models.Persona, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	const query = `
INSERT INTO personas (id, account_id, name, description, image_url, usage_count, created_at, updated_at)
VALUES (?, ?, ?, NULLIF(?, ''), ?, 0, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.AccountID, p.Name, p.Description, p.ImageURL, now, now); err != nil {
		return nil, fmt.Errorf("insert persona: %w", err)
	}
	return p, nil
}

func (r *PersonaRepository) GetByID(ctx context.Context, id string) (*models.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Persona
	if err := row.Scan(&p.ID, &p.AccountID, &p.Name, &p.Description, &p.ImageURL, &p.UsageCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan persona: %w", err)
	}
	return &p, nil
}

func (r *PersonaRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Persona, error) {
	query := `SELECT ` + personaColumns + ` FROM personas WHERE account_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	defer rows.Close()

	var personas []models.Persona
	for rows.Next() {
		var p models.Persona
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Description, &p.ImageURL, &p.UsageCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan persona: %w", err)
		}
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

func (r *PersonaRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT COUNT(*) FROM personas WHERE account_id = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count personas: %w", err)
	}
	return count, nil
}

func (r *PersonaRepository) IncrementUsage(ctx context.Context, id string) error {
	const query = `UPDATE personas SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("increment persona usage: %w", err)
	}
	return nil
}

func (r *PersonaRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	const query = `DELETE FROM personas WHERE id = ? AND account_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete persona: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}
