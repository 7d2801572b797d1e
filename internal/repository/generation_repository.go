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

// ErrTerminalState is returned when a status update targets a record that has
// already reached COMPLETED or FAILED.
var ErrTerminalState = errors.New("generation already in terminal state")

type GenerationRepository struct {
	db *sql.DB
}

func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `id, account_id, prompt, COALESCE(enhanced_prompt, ''), COALESCE(image_url, ''), status, credits_used, width, height, COALESCE(persona_id, ''), COALESCE(style_id, ''), COALESCE(parent_id, ''), created_at, updated_at`

func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) (*models.Generation, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Status == "" {
		g.Status = models.GenerationPending
	}
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	const query = `
INSERT INTO generations (id, account_id, prompt, enhanced_prompt, image_url, status, credits_used, width, height, persona_id, style_id, parent_id, created_at, updated_at)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, g.ID, g.AccountID, g.Prompt, g.EnhancedPrompt, g.ImageURL, string(g.Status), g.CreditsUsed, g.Width, g.Height, g.PersonaID, g.StyleID, g.ParentID, now, now); err != nil {
		return nil, fmt.Errorf("insert generation: %w", err)
	}
	return g, nil
}

func (r *GenerationRepository) GetByID(ctx context.Context, id string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var g models.Generation
	if err := row.Scan(&g.ID, &g.AccountID, &g.Prompt, &g.EnhancedPrompt, &g.ImageURL, &g.Status, &g.CreditsUsed, &g.Width, &g.Height, &g.PersonaID, &g.StyleID, &g.ParentID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan generation: %w", err)
	}
	return &g, nil
}

// MarkCompleted moves the record to COMPLETED with its final artifact URL and
// enhanced prompt. Records already in a terminal state are left untouched.
func (r *GenerationRepository) MarkCompleted(ctx context.Context, id, imageURL, enhancedPrompt string) error {
	const query = `
UPDATE generations SET status = ?, image_url = ?, enhanced_prompt = NULLIF(?, ''), updated_at = ?
WHERE id = ? AND status IN (?, ?)`
	return r.transition(ctx, query, string(models.GenerationCompleted), imageURL, enhancedPrompt, time.Now().UTC(), id, string(models.GenerationPending), string(models.GenerationProcessing))
}

// MarkFailed moves the record to FAILED. Records already in a terminal state
// are left untouched.
func (r *GenerationRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `
UPDATE generations SET status = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`
	return r.transition(ctx, query, string(models.GenerationFailed), time.Now().UTC(), id, string(models.GenerationPending), string(models.GenerationProcessing))
}

func (r *GenerationRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update generation status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("status rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTerminalState
	}
	return nil
}

func (r *GenerationRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.Generation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + generationColumns + ` FROM generations WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var generations []models.Generation
	for rows.Next() {
		var g models.Generation
		if err := rows.Scan(&g.ID, &g.AccountID, &g.Prompt, &g.EnhancedPrompt, &g.ImageURL, &g.Status, &g.CreditsUsed, &g.Width, &g.Height, &g.PersonaID, &g.StyleID, &g.ParentID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		generations = append(generations, g)
	}
	return generations, rows.Err()
}

func (r *GenerationRepository) CountByStatus(ctx context.Context, accountID string, status models.GenerationStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM generations WHERE account_id = ? AND status = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count generations: %w", err)
	}
	return count, nil
}

func (r *GenerationRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	const query = `DELETE FROM generations WHERE id = ? AND account_id = ?`
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return false, fmt.Errorf("delete generation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}
