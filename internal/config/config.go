// Package config loads run configuration from file, environment and
// defaults. Precedence (highest to lowest): flags > env vars > config
// file > defaults. Environment variables use the ARXIVTRANS_ prefix,
// with OPENAI_API_KEY and OPENAI_BASE_URL honored as fallbacks.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"arxiv-translator/internal/types"
)

// Default configuration values.
const (
	DefaultModel          = "gpt-4o"
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultTargetLang     = "zh-Hans"
	DefaultOutputDir      = "output"
	DefaultConcurrency    = 3
	DefaultMaxRetries     = 3
	DefaultRepairLimit    = 3
	DefaultChunkSize      = 4000
	DefaultAPITimeout     = 120 * time.Second
	DefaultCompileTimeout = 5 * time.Minute
)

// Config holds all run options.
type Config struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	APITimeout time.Duration `mapstructure:"api_timeout"`

	TargetLang string `mapstructure:"target_lang"`

	OutputDir   string `mapstructure:"output_dir"`
	Concurrency int    `mapstructure:"concurrency"`
	MaxRetries  int    `mapstructure:"max_retries"`
	RepairLimit int    `mapstructure:"repair_limit"`
	ChunkSize   int    `mapstructure:"chunk_size"`

	Compile        bool          `mapstructure:"compile"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`

	LogFile string `mapstructure:"log_file"`
	Verbose bool   `mapstructure:"verbose"`
}

// Load reads configuration. cfgFile may be empty, in which case known
// locations are probed.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Every key needs a default so AutomaticEnv values survive Unmarshal.
	v.SetDefault("api_key", "")
	v.SetDefault("log_file", "")
	v.SetDefault("model", DefaultModel)
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("target_lang", DefaultTargetLang)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("max_retries", DefaultMaxRetries)
	v.SetDefault("repair_limit", DefaultRepairLimit)
	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("api_timeout", DefaultAPITimeout)
	v.SetDefault("compile", true)
	v.SetDefault("compile_timeout", DefaultCompileTimeout)
	v.SetDefault("verbose", false)

	v.SetEnvPrefix("ARXIVTRANS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, types.NewAppError(types.ErrConfig, "error reading config file", err)
		}
	} else {
		for _, path := range probePaths() {
			if _, err := os.Stat(path); err == nil {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return nil, types.NewAppError(types.ErrConfig, "error reading config file", err)
				}
				break
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "unable to decode config", err)
	}

	// Standard OpenAI variables as fallbacks.
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == DefaultBaseURL {
		if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
			cfg.BaseURL = url
		}
	}
	return &cfg, nil
}

func probePaths() []string {
	paths := []string{"arxivtrans.yaml", "arxivtrans.yml", ".arxivtrans.yaml", ".arxivtrans.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "arxivtrans", "arxivtrans.yaml"),
			filepath.Join(home, ".config", "arxivtrans", "arxivtrans.yml"),
		)
	}
	return paths
}

// Validate checks required fields and the target language tag.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return types.NewAppErrorWithDetails(types.ErrConfig,
			"API key is not configured",
			"set ARXIVTRANS_API_KEY or OPENAI_API_KEY, or api_key in the config file", nil)
	}
	if _, err := language.Parse(c.TargetLang); err != nil {
		return types.NewAppErrorWithDetails(types.ErrConfig,
			"invalid target language tag", c.TargetLang, err)
	}
	if c.Concurrency <= 0 || c.MaxRetries <= 0 || c.RepairLimit <= 0 || c.ChunkSize <= 0 {
		return types.NewAppError(types.ErrConfig,
			"concurrency, max_retries, repair_limit and chunk_size must be positive", nil)
	}
	return nil
}

// TargetLanguageName returns the English display name the translation
// prompt uses for the configured BCP 47 tag, e.g. "Simplified Chinese"
// for zh-Hans.
func (c *Config) TargetLanguageName() string {
	tag, err := language.Parse(c.TargetLang)
	if err != nil {
		return c.TargetLang
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return c.TargetLang
}
