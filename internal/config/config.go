// Package config handles configuration loading for coinverse.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bluecoinverse/coinverse/internal/store"
)

// Config represents the complete application configuration.
type Config struct {
	Rates   RatesConfig   `mapstructure:"rates"   yaml:"rates"`
	LLM     LLMConfig     `mapstructure:"llm"     yaml:"llm"`
	Search  SearchConfig  `mapstructure:"search"  yaml:"search"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// RatesConfig holds the exchange-rate pipeline settings.
type RatesConfig struct {
	BlueURL         string        `mapstructure:"blue_url"          yaml:"blue_url"`
	ClpURL          string        `mapstructure:"clp_url"           yaml:"clp_url"`
	CurrencyAPIBase string        `mapstructure:"currency_api_base" yaml:"currency_api_base"`
	FreshFor        time.Duration `mapstructure:"fresh_for"         yaml:"fresh_for"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"     yaml:"cycle_timeout"`
	AutoRefresh     time.Duration `mapstructure:"auto_refresh"      yaml:"auto_refresh"`
}

// LLMConfig holds the chat-completion provider configuration.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url"    yaml:"base_url"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// SearchConfig holds the product-search settings.
type SearchConfig struct {
	MaxQueryLen  int           `mapstructure:"max_query_len" yaml:"max_query_len"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"     yaml:"cache_ttl"`
	CacheSize    int           `mapstructure:"cache_size"    yaml:"cache_size"`
	MaxHistory   int           `mapstructure:"max_history"   yaml:"max_history"`
	MaxFavorites int           `mapstructure:"max_favorites" yaml:"max_favorites"`
}

// StorageConfig holds the persisted state location.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.coinverse/config.yaml (home directory)
//  3. /etc/coinverse/config.yaml (system)
//
// Environment variables override config file values.
// Format: COINVERSE_<SECTION>_<KEY>, e.g., COINVERSE_LLM_API_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".coinverse"))
	v.AddConfigPath("/etc/coinverse")

	v.SetEnvPrefix("COINVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("COINVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Rates defaults
	v.SetDefault("rates.blue_url", "https://api.bluelytics.com.ar/v2/latest")
	v.SetDefault("rates.clp_url", "https://mindicador.cl/api/dolar")
	v.SetDefault("rates.currency_api_base", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@")
	v.SetDefault("rates.fresh_for", 5*time.Minute)
	v.SetDefault("rates.cycle_timeout", 10*time.Second)
	v.SetDefault("rates.auto_refresh", 5*time.Minute)

	// LLM defaults
	v.SetDefault("llm.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.model", "deepseek-chat")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 800)
	v.SetDefault("llm.timeout", 60*time.Second)

	// Search defaults
	v.SetDefault("search.max_query_len", 200)
	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.cache_size", 50)
	v.SetDefault("search.max_history", 50)
	v.SetDefault("search.max_favorites", 20)

	// Storage defaults
	v.SetDefault("storage.path", store.DefaultPath())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("COINVERSE_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	// Accept the provider's conventional variable name too.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
