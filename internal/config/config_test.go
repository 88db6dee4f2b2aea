package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every lookup at an empty temp dir and clears the keys
// DiscoverConfig reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range []string{
		"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENROUTER_API_KEY",
		"PROFACADEMY_LLM_PROVIDER", "PROFACADEMY_DB_PATH",
		"PROFACADEMY_LLM_GEMINI_API_KEY", "PROFACADEMY_LLM_OPENAI_API_KEY",
		"PROFACADEMY_LLM_ANTHROPIC_API_KEY", "PROFACADEMY_LLM_OPENROUTER_API_KEY",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_DefaultsToDemo(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Demo)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "gemini-3-flash", cfg.LLM.Gemini.Model)
	assert.Equal(t, 4, cfg.LLM.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.Retry.InitialWait)
	assert.Equal(t, 1024, cfg.Generation.ThinkingBudget)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_DiscoversKey(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Demo)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
}

func TestLoad_ConfiguredKeySelectsProvider(t *testing.T) {
	isolate(t)
	t.Setenv("PROFACADEMY_LLM_GEMINI_API_KEY", "real-key")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Demo)
	assert.Equal(t, "gemini", cfg.LLM.Provider, "a configured key wins over discovery")
	assert.Equal(t, "real-key", cfg.LLM.Gemini.APIKey)
}

func TestLoad_KeyInFileSelectsProvider(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "keys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  anthropic:\n    api_key: a-key\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Demo)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	doc := `
db_path: /tmp/academy.db
llm:
  provider: gemini
  gemini:
    model: gemini-pro
  retry:
    initial_wait: 250ms
server:
  addr: ":9000"
  burst: 2
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("PROFACADEMY_LLM_GEMINI_API_KEY", "g-key")
	t.Setenv("PROFACADEMY_DB_PATH", "/tmp/from-env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "gemini-pro", cfg.LLM.Gemini.Model)
	assert.Equal(t, "g-key", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.Retry.InitialWait)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Server.Burst)
	assert.Equal(t, "/tmp/from-env.db", cfg.DBPath, "environment wins over the file")
}

func TestLoad_DefaultDirFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profacademy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profacademy", "config.yaml"), []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err, "an explicit config file must exist")

	t.Setenv("PROFACADEMY_LLM_PROVIDER", "anthropic")
	_, err = Load("")
	assert.ErrorContains(t, err, "PROFACADEMY_LLM_ANTHROPIC_API_KEY")

	t.Setenv("PROFACADEMY_LLM_PROVIDER", "palm")
	_, err = Load("")
	assert.ErrorContains(t, err, "unknown LLM provider")
}
