package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/config"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
)

// ErrReferenceNotFound is returned when a supplied persona or style id does
// not exist or belongs to another account.
var ErrReferenceNotFound = errors.New("reference not found")

// ReferenceKind distinguishes the two reusable asset types for quota checks.
type ReferenceKind string

const (
	KindPersona ReferenceKind = "persona"
	KindStyle   ReferenceKind = "style"
)

// ReferenceContext carries the resolved, read-only prompt-construction
// context for a generation request.
type ReferenceContext struct {
	Persona *models.Persona
	Style   *models.Style
}

// ReferenceService resolves persona/style ids into validated context and
// enforces plan-based creation quotas.
type ReferenceService struct {
	cfg      config.Config
	log      *slog.Logger
	personas *repository.PersonaRepository
	styles   *repository.StyleRepository
}

func NewReferenceService(cfg config.Config, log *slog.Logger, personas *repository.PersonaRepository, styles *repository.StyleRepository) *ReferenceService {
	return &ReferenceService{cfg: cfg, log: log, personas: personas, styles: styles}
}

// Resolve validates the optional persona/style ids against the requesting
// account. A cross-account or unknown id fails with ErrReferenceNotFound
// rather than being silently dropped.
func (s *ReferenceService) Resolve(ctx context.Context, accountID, personaID, styleID string) (ReferenceContext, error) {
	var rc ReferenceContext
	if personaID != "" {
		persona, err := s.personas.GetByID(ctx, personaID)
		if err != nil {
			return rc, err
		}
		if persona == nil || persona.AccountID != accountID {
			return rc, fmt.Errorf("persona %s: %w", personaID, ErrReferenceNotFound)
		}
		rc.Persona = persona
	}
	if styleID != "" {
		style, err := s.styles.GetByID(ctx, styleID)
		if err != nil {
			return rc, err
		}
		if style == nil || style.AccountID != accountID {
			return rc, fmt.Errorf("style %s: %w", styleID, ErrReferenceNotFound)
		}
		rc.Style = style
	}
	return rc, nil
}

// CheckCreateQuota reports whether the account may create another asset of
// the given kind under its plan limits. False is a normal outcome.
func (s *ReferenceService) CheckCreateQuota(ctx context.Context, account *models.Account, kind ReferenceKind) (bool, int, error) {
	limits := s.cfg.LimitsFor(account.Plan)

	var limit, count int
	var err error
	switch kind {
	case KindPersona:
		limit = limits.Personas
		count, err = s.personas.CountByAccount(ctx, account.ID)
	case KindStyle:
		limit = limits.Styles
		count, err = s.styles.CountByAccount(ctx, account.ID)
	default:
		return false, 0, fmt.Errorf("unknown reference kind: %s", kind)
	}
	if err != nil {
		return false, 0, err
	}
	if limit < 0 {
		return true, limit, nil
	}
	return count < limit, limit, nil
}

// RecordUsage bumps usage counters for the references attached to a
// completed generation. Failures here are logged, never fatal.
func (s *ReferenceService) RecordUsage(ctx context.Context, rc ReferenceContext) {
	if rc.Persona != nil {
		if err := s.personas.IncrementUsage(ctx, rc.Persona.ID); err != nil {
			s.log.Error("increment persona usage", "persona", rc.Persona.ID, "err", err)
		}
	}
	if rc.Style != nil {
		if err := s.styles.IncrementUsage(ctx, rc.Style.ID); err != nil {
			s.log.Error("increment style usage", "style", rc.Style.ID, "err", err)
		}
	}
}
