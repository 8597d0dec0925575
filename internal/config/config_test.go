package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderGemini, cfg.LLMProvider)
	assert.Equal(t, "leadership_simulator.db", cfg.DatabaseURL)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionHorizon())
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 0, cfg.HistoryLimit)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LLM_PROVIDER", "yandex")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOpenAINeedsAssistant(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("LLM_PROVIDER", "OpenAI")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("OPENAI_ASSISTANT_ID", "asst_123")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
}

func TestAdminUsers(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ADMIN_USERS", " gbsporto , Ana,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"gbsporto", "Ana"}, cfg.AdminUsers)
	assert.True(t, cfg.IsAdmin("ana"))
	assert.True(t, cfg.IsAdmin("GBSPORTO"))
	assert.False(t, cfg.IsAdmin("bo"))
}

func TestAPIKeyFallsBackToFile(t *testing.T) {
	cfg := Config{LLMProvider: ProviderGemini}
	_, err := cfg.APIKey()
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("  file-key\n"), 0o600))
	cfg.APIKeyFile = path

	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	cfg.GeminiAPIKey = "env-key"
	key, err = cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestAPIKeyPerProvider(t *testing.T) {
	cfg := Config{LLMProvider: ProviderOpenAI, GeminiAPIKey: "g", OpenAIAPIKey: "o"}
	key, err := cfg.APIKey()
	require.NoError(t, err)
	assert.Equal(t, "o", key)
}
