package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/service"
)

type generateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio"`
	PersonaID   string `json:"personaId"`
	StyleID     string `json:"styleId"`
	ParentID    string `json:"editOfGenerationId"`
}

type generateResponse struct {
	GenerationID string `json:"generationId"`
	ImageURL     string `json:"imageUrl,omitempty"`
	Status       string `json:"status"`
	CreditsUsed  int    `json:"creditsUsed"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := s.generations.Generate(r.Context(), service.GenerationRequest{
		AccountID:   account.ID,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		PersonaID:   req.PersonaID,
		StyleID:     req.StyleID,
		ParentID:    req.ParentID,
	})
	if err != nil {
		var insufficient *service.InsufficientCreditsError
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			s.badRequest(w, err)
		case errors.As(err, &insufficient):
			s.writeJSON(w, http.StatusPaymentRequired, map[string]any{
				"error":            "insufficient credits",
				"creditsRequired":  insufficient.Required,
				"creditsAvailable": insufficient.Available,
			})
		case errors.Is(err, service.ErrReferenceNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, service.ErrGenerationFailed):
			s.writeJSON(w, http.StatusInternalServerError, generateResponse{
				Status: string(models.GenerationFailed),
				Error:  "failed to generate image",
			})
		default:
			s.internalError(w, err)
		}
		return
	}

	s.writeJSON(w, http.StatusOK, generateResponse{
		GenerationID: result.GenerationID,
		ImageURL:     result.ImageURL,
		Status:       string(result.Status),
		CreditsUsed:  result.CreditsUsed,
	})
}

type enhanceRequest struct {
	Prompt  string `json:"prompt"`
	Context struct {
		Style string `json:"style"`
		Type  string `json:"type"`
	} `json:"context"`
}

func (s *Server) handleEnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if s.enhancer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "prompt enhancement is not configured")
		return
	}

	var req enhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if utf8.RuneCountInString(prompt) > s.cfg.MaxPromptLength {
		s.writeError(w, http.StatusBadRequest, "prompt too long")
		return
	}

	enhanced, err := s.enhancer.Enhance(r.Context(), prompt, req.Context.Style, req.Context.Type)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, enhanced)
}

type uploadImageRequest struct {
	Base64Data string `json:"base64Data"`
	Filename   string `json:"filename"`
}

// handleUploadImage stores a reference image supplied as base64 so personas
// and styles can be created from local files instead of hosted URLs.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if s.uploader == nil {
		s.writeError(w, http.StatusServiceUnavailable, "artifact storage is not configured")
		return
	}

	var req uploadImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Base64Data == "" || req.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "base64Data and filename are required")
		return
	}

	dataURL := req.Base64Data
	if !strings.HasPrefix(dataURL, "data:") {
		dataURL = "data:image/png;base64," + dataURL
	}
	name := uuid.NewString() + "-" + path.Base(req.Filename)

	url, err := s.uploader.UploadDataURL(r.Context(), dataURL, name)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"url": url, "name": name})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	balance, err := s.credits.Balance(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"credits": balance})
}

type transactionResponse struct {
	ID           string `json:"id"`
	Amount       int    `json:"amount"`
	Type         string `json:"type"`
	Description  string `json:"description,omitempty"`
	GenerationID string `json:"generationId,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

func (s *Server) handleCreditHistory(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	history, err := s.credits.History(r.Context(), account.ID, queryLimit(r, 50))
	if err != nil {
		s.internalError(w, err)
		return
	}
	payload := make([]transactionResponse, 0, len(history))
	for _, t := range history {
		payload = append(payload, transactionResponse{
			ID:           t.ID,
			Amount:       t.Amount,
			Type:         string(t.Type),
			Description:  t.Description,
			GenerationID: t.GenerationID,
			CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": payload})
}

func (s *Server) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	completed, err := s.generations.CompletedCount(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	balance, err := s.credits.Balance(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"credits":          balance,
		"totalGenerations": completed,
		"plan":             account.Plan,
	})
}

func (s *Server) handleGenerationHistory(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	generations, err := s.generations.History(r.Context(), account.ID, queryLimit(r, 20))
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"generations": generations})
}

func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	generation, err := s.generations.Get(r.Context(), account.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if generation == nil {
		s.writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, generation)
}

func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	deleted, err := s.generations.Delete(r.Context(), account.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type personaRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	personas, err := s.personas.ListByAccount(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"personas": personas})
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)

	var req personaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	name := strings.TrimSpace(req.Name)
	if len(name) < 2 {
		s.writeError(w, http.StatusBadRequest, "persona name is required")
		return
	}
	if req.ImageURL == "" {
		s.writeError(w, http.StatusBadRequest, "persona image is required")
		return
	}

	allowed, limit, err := s.refs.CheckCreateQuota(r.Context(), account, service.KindPersona)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !allowed {
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "persona limit reached for plan",
			"limit": limit,
		})
		return
	}

	persona, err := s.personas.Create(r.Context(), &models.Persona{
		AccountID:   account.ID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"persona": persona})
}

func (s *Server) handleDeletePersona(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	deleted, err := s.personas.Delete(r.Context(), account.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "persona not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type styleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ImageURLs   []string `json:"imageUrls"`
	Palette     string   `json:"palette"`
	Mood        string   `json:"mood"`
	VisualStyle string   `json:"visualStyle"`
}

func (s *Server) handleListStyles(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	styles, err := s.styles.ListByAccount(r.Context(), account.ID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"styles": styles})
}

func (s *Server) handleCreateStyle(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)

	var req styleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Name) == "" || len(req.ImageURLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "name and at least one reference image are required")
		return
	}
	if len(req.ImageURLs) > 5 {
		s.writeError(w, http.StatusBadRequest, "maximum 5 reference images allowed per style")
		return
	}

	allowed, limit, err := s.refs.CheckCreateQuota(r.Context(), account, service.KindStyle)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !allowed {
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "style limit reached for plan",
			"limit": limit,
		})
		return
	}

	style, err := s.styles.Create(r.Context(), &models.Style{
		AccountID:   account.ID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Palette:     req.Palette,
		Mood:        req.Mood,
		VisualStyle: req.VisualStyle,
		ImageURLs:   req.ImageURLs,
	})
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"style": style})
}

func (s *Server) handleDeleteStyle(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	deleted, err := s.styles.Delete(r.Context(), account.ID, chi.URLParam(r, "id"))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "style not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type grantRequest struct {
	ExternalID  string `json:"externalId"`
	Amount      int    `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	account, err := s.accounts.FindByExternalID(r.Context(), req.ExternalID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}
	txType := models.TransactionType(strings.ToUpper(req.Type))
	if txType == "" {
		txType = models.TransactionBonus
	}
	balance, err := s.credits.Grant(r.Context(), account.ID, req.Amount, txType, req.Description)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"credits": balance})
}

func queryLimit(r *http.Request, fallback int) int {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return fallback
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
