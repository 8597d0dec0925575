package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	LLMProvider       string `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIAssistantID string `env:"OPENAI_ASSISTANT_ID"`
	OpenAIEvalModel   string `env:"OPENAI_EVAL_MODEL" envDefault:"gpt-4-turbo"`
	// APIKeyFile is read when the provider-specific key variable is unset.
	APIKeyFile        string `env:"API_KEY_FILE"`

	DatabaseURL string   `env:"DATABASE_URL" envDefault:"leadership_simulator.db"`
	HTTPPort    string   `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

	JWTSecret  string        `env:"JWT_SECRET"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	AdminUsers []string      `env:"ADMIN_USERS" envSeparator:","`

	// HistoryLimit caps GET /chat/history; 0 means unbounded.
	HistoryLimit      int    `env:"HISTORY_LIMIT" envDefault:"0"`
	RetentionDays     int    `env:"RETENTION_DAYS" envDefault:"30"`
	RetentionSchedule string `env:"RETENTION_SCHEDULE" envDefault:"0 3 * * *"`
}

var AppConfig Config

// LoadConfig populates AppConfig and exits the process when it is unusable.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, relying on environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	AppConfig = cfg
}

// Load parses the environment without touching AppConfig.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.AdminUsers = trimAll(cfg.AdminUsers)
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	switch c.LLMProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMProvider == ProviderOpenAI && c.OpenAIAssistantID == "" {
		return errors.New("OPENAI_ASSISTANT_ID is required for the openai provider")
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive, got %d", c.RetentionDays)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must not be negative, got %d", c.HistoryLimit)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	return nil
}

// APIKey returns the credential for the configured provider. The provider
// variable wins; API_KEY_FILE is the fallback.
func (c Config) APIKey() (string, error) {
	key := c.GeminiAPIKey
	name := "GEMINI_API_KEY"
	if c.LLMProvider == ProviderOpenAI {
		key = c.OpenAIAPIKey
		name = "OPENAI_API_KEY"
	}
	if key != "" {
		return key, nil
	}
	if c.APIKeyFile == "" {
		return "", fmt.Errorf("%s or API_KEY_FILE is required", name)
	}
	raw, err := os.ReadFile(c.APIKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file: %w", err)
	}
	key = strings.TrimSpace(string(raw))
	if key == "" {
		return "", fmt.Errorf("API key file %s is empty", c.APIKeyFile)
	}
	return key, nil
}

// IsAdmin reports whether username is on the ADMIN_USERS allow-list.
func (c Config) IsAdmin(username string) bool {
	for _, u := range c.AdminUsers {
		if strings.EqualFold(u, username) {
			return true
		}
	}
	return false
}

func (c Config) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
