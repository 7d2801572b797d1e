package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/config"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/database"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/enhancer"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/httpapi"
	ledgermysql "github.com/rohit-kadam-springct/plxelora-ai/internal/ledger/mysql"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/openrouter"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/repository"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/service"
	"github.com/rohit-kadam-springct/plxelora-ai/internal/storage"
	"github.com/rohit-kadam-springct/plxelora-ai/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	ledgerStore := ledgermysql.New(db)

	accountRepo := repository.NewAccountRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	personaRepo := repository.NewPersonaRepository(db)
	styleRepo := repository.NewStyleRepository(db)

	generator := openrouter.NewClient(openrouter.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
		Timeout: cfg.RequestTimeout,
	}, logr)

	var uploader *storage.Uploader
	if cfg.S3Bucket != "" {
		uploader, err = storage.NewUploader(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
	} else {
		logr.Warn("S3 not configured, artifacts stay inline")
	}

	var enh *enhancer.Enhancer
	if cfg.OpenAIAPIKey != "" {
		enh = enhancer.New(cfg.OpenAIAPIKey, cfg.EnhancerModel)
	}

	creditService := service.NewCreditService(ledgerStore, logr)
	referenceService := service.NewReferenceService(cfg, logr, personaRepo, styleRepo)

	var artifactUploader service.ArtifactUploader
	if uploader != nil {
		artifactUploader = uploader
	}
	generationService := service.NewGenerationService(cfg, logr, generationRepo, referenceService, creditService, generator, artifactUploader)

	server := httpapi.NewServer(cfg, logr, accountRepo, personaRepo, styleRepo, creditService, generationService, referenceService, enh, artifactUploader)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
