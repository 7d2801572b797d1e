package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rohit-kadam-springct/plxelora-ai/internal/models"
)

// PlanLimits caps how many reference assets an account may create on a given
// plan tier. A negative value means unlimited.
type PlanLimits struct {
	Personas int
	Styles   int
}

// Config aggregates runtime configuration for the API server and supporting
// services.
type Config struct {
	ListenAddr string
	LogLevel   string

	MySQLDSN string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterModel   string
	RequestTimeout    time.Duration

	OpenAIAPIKey  string
	EnhancerModel string

	CreditsPerGeneration int
	SignupCredits        int
	MaxPromptLength      int

	PlanLimits map[models.PlanTier]PlanLimits

	AdminUsername string
	AdminPassword string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:      getEnv("OPENROUTER_MODEL", "google/gemini-2.5-flash-image-preview:free"),
		RequestTimeout:       time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		EnhancerModel:        getEnv("ENHANCER_MODEL", "gpt-4o-mini"),
		CreditsPerGeneration: getInt("CREDITS_PER_GENERATION", 2),
		SignupCredits:        getInt("SIGNUP_CREDITS", 5),
		MaxPromptLength:      getInt("MAX_PROMPT_LENGTH", 600),
		PlanLimits: map[models.PlanTier]PlanLimits{
			models.PlanFree:    {Personas: getInt("FREE_PERSONA_LIMIT", 10), Styles: getInt("FREE_STYLE_LIMIT", 2)},
			models.PlanCreator: {Personas: getInt("CREATOR_PERSONA_LIMIT", 50), Styles: getInt("CREATOR_STYLE_LIMIT", 10)},
			models.PlanPro:     {Personas: getInt("PRO_PERSONA_LIMIT", -1), Styles: getInt("PRO_STYLE_LIMIT", 10)},
		},
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        os.Getenv("S3_REGION"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:  getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:        getEnv("S3_PREFIX", "thumbnails"),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenRouterAPIKey == "" {
		missing = append(missing, "OPENROUTER_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.CreditsPerGeneration <= 0 {
		return Config{}, errors.New("CREDITS_PER_GENERATION must be positive")
	}
	if cfg.MaxPromptLength <= 0 {
		return Config{}, errors.New("MAX_PROMPT_LENGTH must be positive")
	}

	return cfg, nil
}

// LimitsFor returns the asset limits for a plan, falling back to the free
// tier when the plan is unknown.
func (c Config) LimitsFor(plan models.PlanTier) PlanLimits {
	if limits, ok := c.PlanLimits[plan]; ok {
		return limits
	}
	return c.PlanLimits[models.PlanFree]
}

func loadEnvFile() error {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			if err := godotenv.Load(candidate); err != nil {
				return fmt.Errorf("load env file %s: %w", candidate, err)
			}
			return nil
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
