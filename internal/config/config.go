// Package config loads application settings from an optional YAML file,
// a .env file and PROFACADEMY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/profacademy/profacademy/internal/llm"
)

const envPrefix = "PROFACADEMY"

type Config struct {
	// DBPath overrides the default database location.
	DBPath string `mapstructure:"db_path"`

	// CatalogPath points to a catalog override. Empty uses the built-in
	// catalog.
	CatalogPath string `mapstructure:"catalog"`

	Log        LogConfig        `mapstructure:"log"`
	LLM        llm.Config       `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Server     ServerConfig     `mapstructure:"server"`

	// Demo is set when no provider was configured and no API key was
	// found, so the built-in demo professor answers.
	Demo bool `mapstructure:"-"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type GenerationConfig struct {
	MaxTokens      int `mapstructure:"max_tokens"`
	ThinkingBudget int `mapstructure:"thinking_budget"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`

	// RatePerSecond and Burst bound the requests one session may send.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	d := llm.DefaultConfig()

	v.SetDefault("log.level", "info")

	v.SetDefault("llm.anthropic.model", d.Anthropic.Model)
	v.SetDefault("llm.openai.model", d.OpenAI.Model)
	v.SetDefault("llm.gemini.model", d.Gemini.Model)
	v.SetDefault("llm.openrouter.model", d.OpenRouter.Model)
	v.SetDefault("llm.retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("llm.retry.initial_wait", d.Retry.InitialWait)
	v.SetDefault("llm.retry.max_wait", d.Retry.MaxWait)
	v.SetDefault("llm.retry.multiplier", d.Retry.Multiplier)

	v.SetDefault("generation.max_tokens", 8192)
	v.SetDefault("generation.thinking_budget", 1024)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.rate_per_second", 1.0)
	v.SetDefault("server.burst", 5)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}

// envKeys have no default but may still come from the environment.
var envKeys = []string{
	"db_path",
	"catalog",
	"log.file",
	"llm.provider",
	"llm.anthropic.api_key",
	"llm.anthropic.base_url",
	"llm.openai.api_key",
	"llm.openai.base_url",
	"llm.gemini.api_key",
	"llm.gemini.base_url",
	"llm.openrouter.api_key",
	"llm.openrouter.base_url",
}

// Load reads the configuration. path names a config file; when empty,
// config.yaml in the user config directory is used if it exists.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if dir, err := DefaultDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolveProvider()

	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveProvider picks a provider when none was configured: the first
// one with a key from the config file or PROFACADEMY_* variables, then the
// first standard API key in the environment, else the demo professor.
func (c *Config) resolveProvider() {
	if c.LLM.Provider != "" {
		return
	}
	for _, name := range llm.DiscoveryOrder {
		candidate := c.LLM
		candidate.Provider = name
		if candidate.HasKey() {
			c.LLM.Provider = name
			return
		}
	}
	if found, ok := llm.DiscoverConfig(); ok {
		c.LLM.Provider = found.Provider
		switch found.Provider {
		case "gemini":
			c.LLM.Gemini.APIKey = found.Gemini.APIKey
		case "openai":
			c.LLM.OpenAI.APIKey = found.OpenAI.APIKey
		case "anthropic":
			c.LLM.Anthropic.APIKey = found.Anthropic.APIKey
		case "openrouter":
			c.LLM.OpenRouter.APIKey = found.OpenRouter.APIKey
		}
		return
	}
	c.LLM.Provider = "mock"
	c.Demo = true
}

// DefaultDir returns $XDG_CONFIG_HOME/profacademy, falling back to the
// platform config directory.
func DefaultDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		d, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("resolve config dir: %w", err)
		}
		base = d
	}
	return filepath.Join(base, "profacademy"), nil
}
