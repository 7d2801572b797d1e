package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/config"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/openrouter"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
)

var (
	// ErrInvalidInput rejects malformed requests before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGenerationFailed wraps collaborator failures after compensation ran.
	ErrGenerationFailed = errors.New("generation failed")
)

// InsufficientCreditsError reports the shortfall to the caller. It is an
// expected business outcome.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// ImageGenerator is the external generation model collaborator.
type ImageGenerator interface {
	Generate(ctx context.Context, req openrouter.Request) (*openrouter.Result, error)
}

// ArtifactUploader persists an inline data-URL artifact and returns its
// public URL. Upload failure is non-fatal to a generation.
type ArtifactUploader interface {
	UploadDataURL(ctx context.Context, dataURL, name string) (string, error)
}

// CostPolicy computes the credit cost of a request. The observed policy is a
// flat per-generation cost; tiered pricing plugs in here.
type CostPolicy func(req GenerationRequest) int

type GenerationRequest struct {
	AccountID   string
	Prompt      string
	AspectRatio string
	PersonaID   string
	StyleID     string
	ParentID    string
}

type GenerationResult struct {
	GenerationID string
	ImageURL     string
	Status       models.GenerationStatus
	CreditsUsed  int
	Usage        openrouter.Usage
}

// GenerationService drives one generation request through its lifecycle:
// validate, resolve references, reserve credits, call the model, persist the
// artifact, and compensate with a refund when anything past the reserve
// fails.
type GenerationService struct {
	cfg         config.Config
	log         *slog.Logger
	generations *repository.GenerationRepository
	refs        *ReferenceService
	credits     *CreditService
	generator   ImageGenerator
	uploader    ArtifactUploader
	cost        CostPolicy
}

func NewGenerationService(cfg config.Config, log *slog.Logger, generations *repository.GenerationRepository, refs *ReferenceService, credits *CreditService, generator ImageGenerator, uploader ArtifactUploader) *GenerationService {
	s := &GenerationService{
		cfg:         cfg,
		log:         log,
		generations: generations,
		refs:        refs,
		credits:     credits,
		generator:   generator,
		uploader:    uploader,
	}
	s.cost = func(GenerationRequest) int { return cfg.CreditsPerGeneration }
	return s
}

// SetCostPolicy replaces the flat pricing policy.
func (s *GenerationService) SetCostPolicy(policy CostPolicy) {
	s.cost = policy
}

func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrInvalidInput)
	}
	if utf8.RuneCountInString(prompt) > s.cfg.MaxPromptLength {
		return nil, fmt.Errorf("%w: prompt must be %d characters or less", ErrInvalidInput, s.cfg.MaxPromptLength)
	}
	ratio := req.AspectRatio
	if ratio == "" {
		ratio = "16:9"
	}
	width, height, ok := dimensionsFor(ratio)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidInput, req.AspectRatio)
	}

	// Resolve references before any credit movement.
	rc, err := s.refs.Resolve(ctx, req.AccountID, req.PersonaID, req.StyleID)
	if err != nil {
		return nil, err
	}
	if req.ParentID != "" {
		parent, err := s.generations.GetByID(ctx, req.ParentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.AccountID != req.AccountID {
			return nil, fmt.Errorf("generation %s: %w", req.ParentID, ErrReferenceNotFound)
		}
	}

	cost := s.cost(req)

	record, err := s.generations.Create(ctx, &models.Generation{
		AccountID:   req.AccountID,
		Prompt:      prompt,
		Status:      models.GenerationProcessing,
		CreditsUsed: cost,
		Width:       width,
		Height:      height,
		PersonaID:   req.PersonaID,
		StyleID:     req.StyleID,
		ParentID:    req.ParentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create generation record: %w", err)
	}

	reserved, err := s.credits.ReserveWithRetry(ctx, req.AccountID, cost, "Thumbnail generation", record.ID)
	if err != nil {
		s.markFailed(ctx, record.ID)
		return nil, fmt.Errorf("reserve credits: %w", err)
	}
	if !reserved {
		// Nothing was deducted; no compensation needed.
		s.markFailed(ctx, record.ID)
		available, balanceErr := s.credits.Balance(ctx, req.AccountID)
		if balanceErr != nil {
			s.log.Error("read balance after reserve rejection", "account", req.AccountID, "err", balanceErr)
		}
		return nil, &InsufficientCreditsError{Required: cost, Available: available}
	}

	finalPrompt := buildPrompt(prompt, ratio, rc)

	genCtx := ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	generated, err := s.generator.Generate(genCtx, openrouter.Request{
		Prompt:          finalPrompt,
		AspectRatio:     ratio,
		PersonaImageURL: personaImageURL(rc),
	})
	if err != nil {
		return nil, s.compensate(ctx, record.ID, req.AccountID, cost, err)
	}

	imageURL := generated.ImageURL
	if generated.Inline() && s.uploader != nil {
		name := fmt.Sprintf("thumbnail-%s.png", record.ID)
		uploaded, uploadErr := s.uploader.UploadDataURL(ctx, generated.ImageURL, name)
		if uploadErr != nil {
			// Durable storage is best-effort; fall back to the inline artifact.
			s.log.Warn("artifact upload failed, keeping inline data", "generation", record.ID, "err", uploadErr)
		} else {
			imageURL = uploaded
		}
	}

	if err := s.generations.MarkCompleted(ctx, record.ID, imageURL, finalPrompt); err != nil {
		return nil, s.compensate(ctx, record.ID, req.AccountID, cost, err)
	}

	s.refs.RecordUsage(ctx, rc)

	return &GenerationResult{
		GenerationID: record.ID,
		ImageURL:     imageURL,
		Status:       models.GenerationCompleted,
		CreditsUsed:  cost,
		Usage:        generated.Usage,
	}, nil
}

// compensate marks the record FAILED and refunds the reserved credits. A
// refund that exhausts its retries is an unrecoverable financial discrepancy
// and is logged for manual reconciliation, never swallowed.
func (s *GenerationService) compensate(ctx context.Context, generationID, accountID string, cost int, cause error) error {
	s.markFailed(ctx, generationID)

	if _, refundErr := s.credits.Refund(ctx, accountID, cost, "Generation failed - refund", generationID); refundErr != nil {
		s.log.Error("refund failed: financial discrepancy requires manual reconciliation",
			"alert", true,
			"account", accountID,
			"generation", generationID,
			"amount", cost,
			"err", refundErr,
		)
		return fmt.Errorf("%w: %v (refund also failed: %v)", ErrGenerationFailed, cause, refundErr)
	}

	return fmt.Errorf("%w: %v", ErrGenerationFailed, cause)
}

func (s *GenerationService) markFailed(ctx context.Context, generationID string) {
	if err := s.generations.MarkFailed(ctx, generationID); err != nil && !errors.Is(err, repository.ErrTerminalState) {
		s.log.Error("mark generation failed", "generation", generationID, "err", err)
	}
}

func (s *GenerationService) Get(ctx context.Context, accountID, id string) (*models.Generation, error) {
	g, err := s.generations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil || g.AccountID != accountID {
		return nil, nil
	}
	return g, nil
}

func (s *GenerationService) History(ctx context.Context, accountID string, limit int) ([]models.Generation, error) {
	return s.generations.ListByAccount(ctx, accountID, limit)
}

// Delete removes a generation on explicit user request.
func (s *GenerationService) Delete(ctx context.Context, accountID, id string) (bool, error) {
	return s.generations.Delete(ctx, accountID, id)
}

func (s *GenerationService) CompletedCount(ctx context.Context, accountID string) (int, error) {
	return s.generations.CountByStatus(ctx, accountID, models.GenerationCompleted)
}

func dimensionsFor(ratio string) (int, int, bool) {
	switch ratio {
	case "16:9":
		return 1280, 720, true
	case "9:16":
		return 720, 1280, true
	case "1:1":
		return 1024, 1024, true
	default:
		return 0, 0, false
	}
}

func personaImageURL(rc ReferenceContext) string {
	if rc.Persona == nil {
		return ""
	}
	return rc.Persona.ImageURL
}

// buildPrompt merges the user prompt with persona/style context and canvas
// directives so the model fills the full frame at the requested ratio.
func buildPrompt(prompt, ratio string, rc ReferenceContext) string {
	var b strings.Builder
	b.WriteString("Generate a professional, high-quality thumbnail image that fills the entire ")
	b.WriteString(ratio)
	b.WriteString(" canvas edge-to-edge with no borders, padding, or empty space: ")
	b.WriteString(prompt)

	if rc.Persona != nil {
		b.WriteString("\n\nFeature the person from the supplied reference image as the main subject")
		if rc.Persona.Description != "" {
			b.WriteString(" (")
			b.WriteString(rc.Persona.Description)
			b.WriteString(")")
		}
		b.WriteString(", preserving their likeness.")
	}

	if rc.Style != nil {
		b.WriteString("\n\nVisual style:")
		if rc.Style.VisualStyle != "" {
			b.WriteString(" ")
			b.WriteString(rc.Style.VisualStyle)
			b.WriteString(".")
		}
		if rc.Style.Palette != "" {
			b.WriteString(" Color palette: ")
			b.WriteString(rc.Style.Palette)
			b.WriteString(".")
		}
		if rc.Style.Mood != "" {
			b.WriteString(" Mood: ")
			b.WriteString(rc.Style.Mood)
			b.WriteString(".")
		}
	}

	b.WriteString("\n\nStrong focal point, sharp focus, vibrant colors, high contrast, designed to capture attention in a feed.")
	return b.String()
}
