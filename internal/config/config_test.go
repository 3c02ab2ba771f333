package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	secretsDir = t.TempDir()
	t.Setenv("AI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.AIAPIKey)
	assert.Equal(t, StrategySequential, cfg.IllustrationStrategy)
	assert.Equal(t, 1500*time.Millisecond, cfg.IllustrationPacing)
	assert.Equal(t, 25, cfg.MaxPages)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoadConfig_RejectsUnknownStrategy(t *testing.T) {
	secretsDir = t.TempDir()
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("ILLUSTRATION_STRATEGY", "random")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ILLUSTRATION_STRATEGY")
}

func TestLoadConfig_OllamaDoesNotNeedKey(t *testing.T) {
	secretsDir = t.TempDir()
	t.Setenv("AI_API_KEY", "")
	t.Setenv("AI_CLIENT_TYPE", ClientOllama)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.AIAPIKey)
}

func TestReadSecret_PrefersFile(t *testing.T) {
	secretsDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(secretsDir, "ai_api_key"), []byte(" from-file\n"), 0o600))
	t.Setenv("AI_API_KEY", "from-env")

	v, err := ReadSecret("ai_api_key", "AI_API_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
}

func TestMaskedDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "secret", DBHost: "db", DBPort: "5432", DBName: "books", DBSSLMode: "disable"}

	assert.Equal(t, "postgres://u:secret@db:5432/books?sslmode=disable", cfg.GetDSN())
	assert.NotContains(t, cfg.MaskedDSN(), "secret")
	assert.Contains(t, cfg.MaskedDSN(), "@db:5432/books")
}
