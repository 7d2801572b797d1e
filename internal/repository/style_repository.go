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

type StyleRepository struct {
	db *sql.DB
}

func NewStyleRepository(db *sql.DB) *StyleRepository {
	return &StyleRepository{db: db}
}

const styleColumns = `id, account_id, name, COALESCE(description, ''), COALESCE(palette, ''), COALESCE(mood, ''), COALESCE(visual_style, ''), usage_count, created_at, updated_at`

// Create inserts the style and its reference images in one transaction.
func (r *StyleRepository) Create(ctx context.Context, s *models.Style) (*models.Style, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
INSERT INTO styles (id, account_id, name, description, palette, mood, visual_style, usage_count, created_at, updated_at)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), 0, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, s.ID, s.AccountID, s.Name, s.Description, s.Palette, s.Mood, s.VisualStyle, now, now); err != nil {
		return nil, fmt.Errorf("insert style: %w", err)
	}

	const imageQuery = `
INSERT INTO style_images (id, style_id, image_url, position, created_at)
VALUES (?, ?, ?, ?, ?)`
	for i, url := range s.ImageURLs {
		if _, err := tx.ExecContext(ctx, imageQuery, uuid.NewString(), s.ID, url, i, now); err != nil {
			return nil, fmt.Errorf("insert style image: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s, nil
}

func (r *StyleRepository) GetByID(ctx context.Context, id string) (*models.Style, error) {
	query := `SELECT ` + styleColumns + ` FROM styles WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var s models.Style
	if err := row.Scan(&s.ID, &s.AccountID, &s.Name, &s.Description, &s.Palette, &s.Mood, &s.VisualStyle, &s.UsageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan style: %w", err)
	}
	urls, err := r.imageURLs(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.ImageURLs = urls
	return &s, nil
}

func (r *StyleRepository) imageURLs(ctx context.Context, styleID string) ([]string, error) {
	const query = `SELECT image_url FROM style_images WHERE style_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, styleID)
	if err != nil {
		return nil, fmt.Errorf("list style images: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan style image: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func (r *StyleRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Style, error) {
	query := `SELECT ` + styleColumns + ` FROM styles WHERE account_id = ? ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list styles: %w", err)
	}
	defer rows.Close()

	var styles []models.Style
	for rows.Next() {
		var s models.Style
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Name, &s.Description, &s.Palette, &s.Mood, &s.VisualStyle, &s.UsageCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan style: %w", err)
		}
		styles = append(styles, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range styles {
		urls, err := r.imageURLs(ctx, styles[i].ID)
		if err != nil {
			return nil, err
		}
		styles[i].ImageURLs = urls
	}
	return styles, nil
}

func (r *StyleRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT COUNT(*) FROM styles WHERE account_id = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count styles: %w", err)
	}
	return count, nil
}

func (r *StyleRepository) IncrementUsage(ctx context.Context, id string) error {
	const query = `UPDATE styles SET usage_count = usage_count + 1, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("increment style usage: %w", err)
	}
	return nil
}

func (r *StyleRepository) Delete(ctx context.Context, accountID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owned string
	err = tx.QueryRowContext(ctx, `SELECT id FROM styles WHERE id = ? AND account_id = ?`, id, accountID).Scan(&owned)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check style ownership: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM style_images WHERE style_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete style images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM styles WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("delete style: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}
