// Package httpapi exposes the REST surface. Request identity is supplied by
// the upstream auth proxy in trusted headers; this layer never verifies
// credentials itself.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/config"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/enhancer"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/service"
)

type contextKey string

const accountContextKey contextKey = "account"

type Server struct {
	addr        string
	cfg         config.Config
	log         *slog.Logger
	accounts    *repository.AccountRepository
	personas    *repository.PersonaRepository
	styles      *repository.StyleRepository
	credits     *service.CreditService
	generations *service.GenerationService
	refs        *service.ReferenceService
	enhancer    *enhancer.Enhancer
	uploader    service.ArtifactUploader
	router      *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, accounts *repository.AccountRepository, personas *repository.PersonaRepository, styles *repository.StyleRepository, credits *service.CreditService, generations *service.GenerationService, refs *service.ReferenceService, enh *enhancer.Enhancer, uploader service.ArtifactUploader) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:        cfg.ListenAddr,
		cfg:         cfg,
		log:         log,
		accounts:    accounts,
		personas:    personas,
		styles:      styles,
		credits:     credits,
		generations: generations,
		refs:        refs,
		enhancer:    enh,
		uploader:    uploader,
		router:      r,
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.identityMiddleware)
		api.Post("/generate", s.handleGenerate)
		api.Post("/enhance-prompt", s.handleEnhancePrompt)
		api.Post("/upload-image", s.handleUploadImage)
		api.Get("/credits/balance", s.handleBalance)
		api.Get("/credits/history", s.handleCreditHistory)
		api.Get("/dashboard/stats", s.handleDashboardStats)
		api.Route("/generations", func(r chi.Router) {
			r.Get("/history", s.handleGenerationHistory)
			r.Get("/history/{id}", s.handleGetGeneration)
			r.Delete("/history/{id}", s.handleDeleteGeneration)
		})
		api.Route("/personas", func(r chi.Router) {
			r.Get("/", s.handleListPersonas)
			r.Post("/", s.handleCreatePersona)
			r.Delete("/{id}", s.handleDeletePersona)
		})
		api.Route("/styles", func(r chi.Router) {
			r.Get("/", s.handleListStyles)
			r.Post("/", s.handleCreateStyle)
			r.Delete("/{id}", s.handleDeleteStyle)
		})
	})

	r.Group(func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Post("/admin/credits/grant", s.handleGrantCredits)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// identityMiddleware resolves the verified external identity forwarded by
// the auth proxy into an account, creating it with the signup balance on
// first sight.
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		externalID := r.Header.Get("X-User-ID")
		if externalID == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		account, created, err := s.accounts.Ensure(r.Context(), externalID, r.Header.Get("X-User-Email"), r.Header.Get("X-User-First-Name"), r.Header.Get("X-User-Last-Name"), s.cfg.SignupCredits)
		if err != nil {
			s.internalError(w, err)
			return
		}
		if created {
			s.log.Info("account created", "account", account.ID, "external_id", externalID)
		}
		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.AdminUsername)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.cfg.AdminPassword)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accountFrom(r *http.Request) *models.Account {
	account, _ := r.Context().Value(accountContextKey).(*models.Account)
	return account
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("internal error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
