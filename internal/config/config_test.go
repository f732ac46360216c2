package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-translator/internal/types"
)

// chdirTemp keeps probing away from any real config in the repo root.
func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultTargetLang, cfg.TargetLang)
	assert.Equal(t, DefaultOutputDir, cfg.OutputDir)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultAPITimeout, cfg.APITimeout)
	assert.True(t, cfg.Compile)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadConfigFile(t *testing.T) {
	chdirTemp(t)
	path := filepath.Join(t.TempDir(), "arxivtrans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: file-key
model: gpt-4o-mini
target_lang: ja
concurrency: 5
compile_timeout: 10m
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, "ja", cfg.TargetLang)
	assert.Equal(t, 5, cfg.Concurrency)
	assert.Equal(t, 10*time.Minute, cfg.CompileTimeout)
	// unset fields keep their defaults
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
}

func TestLoadMissingConfigFileIsError(t *testing.T) {
	chdirTemp(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ARXIVTRANS_MODEL", "gpt-4.1")
	t.Setenv("ARXIVTRANS_API_KEY", "env-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.Model)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestLoadOpenAIFallbacks(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ARXIVTRANS_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example.com/v1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "openai-key", cfg.APIKey)
	assert.Equal(t, "https://proxy.example.com/v1", cfg.BaseURL)
}

func validConfig() *Config {
	return &Config{
		APIKey:      "k",
		TargetLang:  "zh-Hans",
		Concurrency: 3,
		MaxRetries:  3,
		RepairLimit: 3,
		ChunkSize:   4000,
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.APIKey = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestValidateBadLanguageTag(t *testing.T) {
	cfg := validConfig()
	cfg.TargetLang = "not a language tag"
	require.Error(t, cfg.Validate())
}

func TestValidateNonPositiveLimits(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Concurrency = 0 },
		func(c *Config) { c.MaxRetries = -1 },
		func(c *Config) { c.RepairLimit = 0 },
		func(c *Config) { c.ChunkSize = 0 },
	} {
		cfg := validConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate())
	}
}

func TestTargetLanguageName(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{"zh-Hans", "Simplified Chinese"},
		{"ja", "Japanese"},
		{"ko", "Korean"},
		{"de", "German"},
	}
	for _, tc := range cases {
		cfg := validConfig()
		cfg.TargetLang = tc.tag
		assert.Equal(t, tc.want, cfg.TargetLanguageName(), tc.tag)
	}

	cfg := validConfig()
	cfg.TargetLang = "???"
	assert.Equal(t, "???", cfg.TargetLanguageName(), "unparseable tags fall back to the raw value")
}
