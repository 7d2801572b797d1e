package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/config"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/ledger/sqlite"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/openrouter"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
)

type fakeGenerator struct {
	mu      sync.Mutex
	result  *openrouter.Result
	err     error
	calls   int
	lastReq openrouter.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req openrouter.Request) (*openrouter.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (f *fakeUploader) UploadDataURL(ctx context.Context, dataURL, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type testEnv struct {
	cfg         config.Config
	store       *sqlite.Store
	accounts    *repository.AccountRepository
	personas    *repository.PersonaRepository
	styles      *repository.StyleRepository
	generations *repository.GenerationRepository
	credits     *CreditService
	refs        *ReferenceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Config{
		CreditsPerGeneration: 2,
		SignupCredits:        5,
		MaxPromptLength:      600,
		PlanLimits: map[models.PlanTier]config.PlanLimits{
			models.PlanFree:    {Personas: 10, Styles: 2},
			models.PlanCreator: {Personas: 50, Styles: 10},
			models.PlanPro:     {Personas: -1, Styles: 10},
		},
	}
	log := testLogger()
	db := store.DB()
	personas := repository.NewPersonaRepository(db)
	styles := repository.NewStyleRepository(db)

	return &testEnv{
		cfg:         cfg,
		store:       store,
		accounts:    repository.NewAccountRepository(db),
		personas:    personas,
		styles:      styles,
		generations: repository.NewGenerationRepository(db),
		credits:     NewCreditService(store, log),
		refs:        NewReferenceService(cfg, log, personas, styles),
	}
}

func (e *testEnv) newAccount(t *testing.T, externalID string, credits int) *models.Account {
	t.Helper()
	account, _, err := e.accounts.Ensure(context.Background(), externalID, externalID+"@example.com", "Test", "User", credits)
	require.NoError(t, err)
	return account
}

func (e *testEnv) newService(generator ImageGenerator, uploader ArtifactUploader) *GenerationService {
	return NewGenerationService(e.cfg, testLogger(), e.generations, e.refs, e.credits, generator, uploader)
}

func TestGenerateSuccessDebitsAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "creator", 5)

	persona, err := env.personas.Create(ctx, &models.Persona{
		AccountID: account.ID,
		Name:      "Host",
		ImageURL:  "https://cdn.example.com/host.png",
	})
	require.NoError(t, err)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "data:image/png;base64,aGVsbG8="}}
	uploader := &fakeUploader{url: "https://cdn.example.com/thumb.png"}
	svc := env.newService(generator, uploader)

	result, err := svc.Generate(ctx, GenerationRequest{
		AccountID:   account.ID,
		Prompt:      "Epic mountain sunrise",
		AspectRatio: "16:9",
		PersonaID:   persona.ID,
	})
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, result.Status)
	require.Equal(t, 2, result.CreditsUsed)
	require.Equal(t, "https://cdn.example.com/thumb.png", result.ImageURL)
	require.Equal(t, 1, uploader.calls)
	require.Equal(t, "https://cdn.example.com/host.png", generator.lastReq.PersonaImageURL)
	require.Contains(t, generator.lastReq.Prompt, "Epic mountain sunrise")

	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 3, balance)

	stored, err := env.generations.GetByID(ctx, result.GenerationID)
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, stored.Status)
	require.Equal(t, "https://cdn.example.com/thumb.png", stored.ImageURL)
	require.Equal(t, 1280, stored.Width)
	require.Equal(t, 720, stored.Height)

	updated, err := env.personas.GetByID(ctx, persona.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.UsageCount)
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "broke", 1)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := env.newService(generator, nil)

	_, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: "Anything"})
	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 2, insufficient.Required)
	require.Equal(t, 1, insufficient.Available)
	require.Equal(t, 0, generator.calls, "the model must not be called without reserved credits")

	// The rejected reserve leaves the balance and the ledger untouched.
	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance)

	history, err := env.credits.History(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Empty(t, history)

	generations, err := env.generations.ListByAccount(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, generations, 1)
	require.Equal(t, models.GenerationFailed, generations[0].Status)
}

func TestGenerateFailureRefundsCredits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "unlucky", 5)

	generator := &fakeGenerator{err: errors.New("model overloaded")}
	svc := env.newService(generator, nil)

	_, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: "Doomed attempt"})
	require.ErrorIs(t, err, ErrGenerationFailed)

	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 5, balance, "the refund must restore the starting balance")

	history, err := env.credits.History(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2, "both the usage and its refund stay on the ledger")
	amounts := map[models.TransactionType]int{}
	for _, tx := range history {
		amounts[tx.Type] = tx.Amount
	}
	require.Equal(t, -2, amounts[models.TransactionUsage])
	require.Equal(t, 2, amounts[models.TransactionRefund])

	generations, err := env.generations.ListByAccount(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, generations, 1)
	require.Equal(t, models.GenerationFailed, generations[0].Status)
}

func TestGenerateCrossAccountPersonaRejectedBeforeReserve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newAccount(t, "owner", 5)
	intruder := env.newAccount(t, "intruder", 5)

	persona, err := env.personas.Create(ctx, &models.Persona{AccountID: owner.ID, Name: "Private", ImageURL: "https://x/p.png"})
	require.NoError(t, err)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := env.newService(generator, nil)

	_, err = svc.Generate(ctx, GenerationRequest{AccountID: intruder.ID, Prompt: "Borrowed face", PersonaID: persona.ID})
	require.ErrorIs(t, err, ErrReferenceNotFound)
	require.Equal(t, 0, generator.calls)

	// Rejected before any side effect.
	balance, err := env.credits.Balance(ctx, intruder.ID)
	require.NoError(t, err)
	require.Equal(t, 5, balance)

	generations, err := env.generations.ListByAccount(ctx, intruder.ID, 10)
	require.NoError(t, err)
	require.Empty(t, generations)
}

// ackLossLedger passes through to the real store but drops the first
// successful USAGE commit's acknowledgement, simulating a connection reset
// between commit and response.
type ackLossLedger struct {
	ledger.Store
	tripped bool
}

func (l *ackLossLedger) ApplyDelta(ctx context.Context, accountID string, delta int, meta ledger.TxMeta) (int, error) {
	balance, err := l.Store.ApplyDelta(ctx, accountID, delta, meta)
	if err == nil && !l.tripped && meta.Type == models.TransactionUsage {
		l.tripped = true
		return 0, errors.New("connection reset before commit ack")
	}
	return balance, err
}

func TestGenerateSurvivesLostReserveAck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "flaky-net", 5)

	credits := NewCreditService(&ackLossLedger{Store: env.store}, testLogger())
	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := NewGenerationService(env.cfg, testLogger(), env.generations, env.refs, credits, generator, nil)

	result, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: "Persist through the noise"})
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, result.Status)

	// The committed-but-unacked debit was detected via the dedup key, not
	// charged a second time and not abandoned as a failure.
	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 3, balance)

	history, err := env.credits.History(ctx, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, models.TransactionUsage, history[0].Type)
}

func TestGenerateConcurrentRequestsNeverOverspend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "racer", 5)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := env.newService(generator, nil)

	const workers = 3
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: "Race condition"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	var insufficient *InsufficientCreditsError
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.As(err, &insufficient):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 2, successes, "five credits fund exactly two generations")

	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 1, balance)
}

func TestGenerateUploadFailureKeepsInlineArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "inline", 5)

	inline := "data:image/png;base64,aGVsbG8="
	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: inline}}
	uploader := &fakeUploader{err: errors.New("bucket unavailable")}
	svc := env.newService(generator, uploader)

	result, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: "Keep it inline"})
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, result.Status)
	require.Equal(t, inline, result.ImageURL)
	require.Equal(t, 1, uploader.calls)

	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 3, balance, "a storage hiccup must not refund a delivered image")
}

func TestGenerateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.newAccount(t, "picky", 5)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := env.newService(generator, nil)

	cases := []struct {
		name string
		req  GenerationRequest
	}{
		{"empty prompt", GenerationRequest{AccountID: account.ID, Prompt: "   "}},
		{"prompt too long", GenerationRequest{AccountID: account.ID, Prompt: strings.Repeat("x", 601)}},
		{"multibyte prompt too long", GenerationRequest{AccountID: account.ID, Prompt: strings.Repeat("日", 601)}},
		{"bad aspect ratio", GenerationRequest{AccountID: account.ID, Prompt: "fine", AspectRatio: "4:3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Generate(ctx, tc.req)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	require.Equal(t, 0, generator.calls)

	balance, err := env.credits.Balance(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, 5, balance)

	// The budget counts characters, not bytes: 600 multibyte runes fit.
	result, err := svc.Generate(ctx, GenerationRequest{AccountID: account.ID, Prompt: strings.Repeat("日", 600)})
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, result.Status)
}

func TestGenerateEditRequiresOwnParent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newAccount(t, "author", 5)
	other := env.newAccount(t, "other", 5)

	generator := &fakeGenerator{result: &openrouter.Result{ImageURL: "https://img.example.com/a.png"}}
	svc := env.newService(generator, nil)

	result, err := svc.Generate(ctx, GenerationRequest{AccountID: owner.ID, Prompt: "Original"})
	require.NoError(t, err)

	_, err = svc.Generate(ctx, GenerationRequest{AccountID: other.ID, Prompt: "Remix", ParentID: result.GenerationID})
	require.ErrorIs(t, err, ErrReferenceNotFound)

	edit, err := svc.Generate(ctx, GenerationRequest{AccountID: owner.ID, Prompt: "Remix", ParentID: result.GenerationID})
	require.NoError(t, err)
	require.Equal(t, models.GenerationCompleted, edit.Status)
}
