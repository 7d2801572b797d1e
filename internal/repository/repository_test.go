package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger/sqlite"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.DB()
}

func seedAccount(t *testing.T, db *sql.DB) *models.Account {
	t.Helper()
	account, created, err := repository.NewAccountRepository(db).Ensure(context.Background(), "ext-"+t.Name(), "u@example.com", "Test", "User", 5)
	require.NoError(t, err)
	require.True(t, created)
	return account
}

func TestAccountEnsureIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	accounts := repository.NewAccountRepository(db)

	first, created, err := accounts.Ensure(ctx, "ext-1", "a@example.com", "Ada", "L", 5)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, models.PlanFree, first.Plan)
	require.Equal(t, 5, first.Credits)

	second, created, err := accounts.Ensure(ctx, "ext-1", "a@example.com", "Ada", "L", 5)
	require.NoError(t, err)
	require.False(t, created, "ensure must not grant signup credits twice")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 5, second.Credits)
}

func TestGenerationTransitionsAreMonotonic(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	generations := repository.NewGenerationRepository(db)

	record, err := generations.Create(ctx, &models.Generation{
		AccountID:   account.ID,
		Prompt:      "sunrise",
		Status:      models.GenerationProcessing,
		CreditsUsed: 2,
		Width:       1280,
		Height:      720,
	})
	require.NoError(t, err)

	require.NoError(t, generations.MarkCompleted(ctx, record.ID, "https://x/a.png", "enhanced sunrise"))

	// Terminal records cannot be moved again, in either direction.
	require.ErrorIs(t, generations.MarkFailed(ctx, record.ID), repository.ErrTerminalState)
	require.ErrorIs(t, generations.MarkCompleted(ctx, record.ID, "https://x/b.png", ""), repository.ErrTerminalState)

	stored, err := generations.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, stored.Status)
	require.Equal(t, "https://x/a.png", stored.ImageURL)
	require.Equal(t, "enhanced sunrise", stored.EnhancedPrompt)
}

func TestGenerationDeleteScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	generations := repository.NewGenerationRepository(db)

	record, err := generations.Create(ctx, &models.Generation{AccountID: account.ID, Prompt: "p", CreditsUsed: 2, Width: 1280, Height: 720})
	require.NoError(t, err)

	deleted, err := generations.Delete(ctx, "someone-else", record.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = generations.Delete(ctx, account.ID, record.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	stored, err := generations.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestGenerationCountByStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	generations := repository.NewGenerationRepository(db)

	for i, status := range []models.GenerationStatus{models.GenerationCompleted, models.GenerationCompleted, models.GenerationFailed} {
		_, err := generations.Create(ctx, &models.Generation{
			AccountID:   account.ID,
			Prompt:      "p",
			Status:      status,
			CreditsUsed: 2,
			Width:       1280,
			Height:      720,
		})
		require.NoError(t, err, "record %d", i)
	}

	count, err := generations.CountByStatus(ctx, account.ID, models.GenerationCompleted)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestPersonaLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	personas := repository.NewPersonaRepository(db)

	created, err := personas.Create(ctx, &models.Persona{
		AccountID:   account.ID,
		Name:        "Host",
		Description: "short beard, glasses",
		ImageURL:    "https://x/p.png",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	require.NoError(t, personas.IncrementUsage(ctx, created.ID))

	fetched, err := personas.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Host", fetched.Name)
	require.Equal(t, "short beard, glasses", fetched.Description)
	require.Equal(t, 1, fetched.UsageCount)

	count, err := personas.CountByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	deleted, err := personas.Delete(ctx, "someone-else", created.ID)
	require.NoError(t, err)
	require.False(t, deleted)

	deleted, err = personas.Delete(ctx, account.ID, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestStyleCreatePersistsOrderedImages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	styles := repository.NewStyleRepository(db)

	created, err := styles.Create(ctx, &models.Style{
		AccountID:   account.ID,
		Name:        "Neon",
		Palette:     "magenta and cyan",
		Mood:        "energetic",
		VisualStyle: "retro synthwave",
		ImageURLs:   []string{"https://x/1.png", "https://x/2.png", "https://x/3.png"},
	})
	require.NoError(t, err)

	fetched, err := styles.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"https://x/1.png", "https://x/2.png", "https://x/3.png"}, fetched.ImageURLs)
	require.Equal(t, "magenta and cyan", fetched.Palette)

	list, err := styles.ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].ImageURLs, 3)
}

func TestStyleDeleteScopedToOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db)
	styles := repository.NewStyleRepository(db)

	created, err := styles.Create(ctx, &models.Style{AccountID: account.ID, Name: "Neon", ImageURLs: []string{"https://x/1.png"}})
	require.NoError(t, err)

	deleted, err := styles.Delete(ctx, "someone-else", created.ID)
	require.NoError(t, err)
	require.False(t, deleted, "a foreign delete must not touch the style or its images")

	fetched, err := styles.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	require.Len(t, fetched.ImageURLs, 1)

	deleted, err = styles.Delete(ctx, account.ID, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	fetched, err = styles.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Nil(t, fetched)
}
